package extractors

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// MegaCloud wraps its sources payload in a three-layer string cipher keyed by
// a shared key (published out-of-band) and a per-embed client key. The
// routines below were reverse-engineered from the player and must stay
// bit-exact: this is a fixed protocol to interoperate with, not a primitive
// to improve. Any behavior that looks arbitrary is intentional.

// printableCount is the size of the printable ASCII alphabet (32..126) the
// cipher operates on.
const printableCount = 95

// lcg is the cipher's deterministic PRNG.
type lcg struct{ seed int64 }

func (l *lcg) next() int64 {
	l.seed = (l.seed*1103515245 + 12345) & 0x7fffffff
	return l.seed
}

// layerSeed computes the 32-bit rolling hash that seeds a layer's PRNG.
func layerSeed(layerKey string) int64 {
	var h int64
	for i := 0; i < len(layerKey); i++ {
		h = (h*31 + int64(layerKey[i])) & 0xffffffff
	}
	return h
}

// GenerateKey derives the working key from the shared key and the per-embed
// client key.
func GenerateKey(sharedKey, clientKey string) string {
	secret := sharedKey + clientKey
	if len(secret) == 0 {
		return ""
	}

	var hash int64
	for i := 0; i < len(secret); i++ {
		hash = int64(secret[i]) + hash*31 + (hash << 7) - hash
	}
	if hash < 0 {
		hash = -hash
	}

	obfuscated := make([]byte, len(secret))
	for i := 0; i < len(secret); i++ {
		obfuscated[i] = secret[i] ^ 247
	}

	pivot := (int(hash%int64(len(secret))) + 5) % len(secret)
	rotated := make([]byte, 0, len(secret))
	rotated = append(rotated, obfuscated[pivot:]...)
	rotated = append(rotated, obfuscated[:pivot]...)

	reversed := make([]byte, len(clientKey))
	for i := 0; i < len(clientKey); i++ {
		reversed[i] = clientKey[len(clientKey)-1-i]
	}

	mixed := make([]byte, 0, len(rotated)+len(reversed))
	for i := 0; i < len(rotated) || i < len(reversed); i++ {
		if i < len(rotated) {
			mixed = append(mixed, rotated[i])
		}
		if i < len(reversed) {
			mixed = append(mixed, reversed[i])
		}
	}

	length := 96 + int(hash%33)
	if length > len(mixed) {
		length = len(mixed)
	}
	mixed = mixed[:length]

	for i, c := range mixed {
		mixed[i] = (c % printableCount) + 32
	}
	return string(mixed)
}

// Decrypt peels the three cipher layers off a base64 payload and returns the
// plaintext announced by the 4-digit length prefix.
func Decrypt(encrypted, clientKey, sharedKey string) (string, error) {
	key := GenerateKey(sharedKey, clientKey)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}

	buf := string(raw)
	for iteration := 3; iteration >= 1; iteration-- {
		layerKey := key + strconv.Itoa(iteration)
		buf = shiftPass(buf, layerKey)
		buf = columnarDecipher(buf, layerKey)
		buf = substitutionPass(buf, layerKey)
	}

	if len(buf) < 4 {
		return "", errors.New("decrypted payload too short")
	}
	n, err := strconv.Atoi(buf[:4])
	if err != nil || n < 0 || 4+n > len(buf) {
		return "", errors.New("length prefix out of bounds")
	}
	return buf[4 : 4+n], nil
}

// shiftPass reverses the layer's keyed Caesar-style shift over the printable
// set. The PRNG is consumed only for printable characters, in buffer order.
func shiftPass(buf, layerKey string) string {
	rng := lcg{seed: layerSeed(layerKey)}
	out := []byte(buf)
	for i, c := range out {
		if c < 32 || c > 126 {
			continue
		}
		r := rng.next() % printableCount
		out[i] = byte((int64(c-32)-r+printableCount)%printableCount) + 32
	}
	return string(out)
}

// columnarDecipher reverses the layer's columnar transposition: the cipher
// text fills the grid column-by-column in sorted key order (key positions
// ordered by character value, then original index) and the plaintext is read
// back row-major, space-padded past the buffer's length.
func columnarDecipher(buf, layerKey string) string {
	cols := len(layerKey)
	if cols == 0 || len(buf) == 0 {
		return buf
	}
	rows := (len(buf) + cols - 1) / cols

	order := make([]int, cols)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if layerKey[order[i]] != layerKey[order[j]] {
			return layerKey[order[i]] < layerKey[order[j]]
		}
		return order[i] < order[j]
	})

	grid := make([]byte, rows*cols)
	for i := range grid {
		grid[i] = ' '
	}
	k := 0
	for _, col := range order {
		for row := 0; row < rows && k < len(buf); row++ {
			grid[row*cols+col] = buf[k]
			k++
		}
	}
	return string(grid)
}

// substitutionPass reverses the layer's keyed substitution: a Fisher-Yates
// shuffle of the printable set (seeded by the layer key hash) defines the
// forward alphabet; mapping shuffled[i] back to printable[i] undoes it.
// Characters outside the printable set pass through.
func substitutionPass(buf, layerKey string) string {
	rng := lcg{seed: layerSeed(layerKey)}

	shuffled := make([]byte, printableCount)
	for i := range shuffled {
		shuffled[i] = byte(32 + i)
	}
	for i := printableCount - 1; i > 0; i-- {
		j := int(rng.next() % int64(i+1))
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	var table [256]byte
	for i := range table {
		table[i] = byte(i)
	}
	for i := 0; i < printableCount; i++ {
		table[shuffled[i]] = byte(32 + i)
	}

	out := []byte(buf)
	for i, c := range out {
		out[i] = table[c]
	}
	return string(out)
}
