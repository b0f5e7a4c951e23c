package extractors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	providerhttp "github.com/wakaranaidev/koware/internal/providers/http"
	"github.com/wakaranaidev/koware/pkg/types"
)

// sharedKeyURL is the fixed endpoint publishing the current shared decrypt
// key as {"mega": "<key>"}.
const sharedKeyURL = "https://raw.githubusercontent.com/yogesh-hacker/MegacloudKeys/refs/heads/main/keys.json"

// MegaCloud resolves MegaCloud-style embed pages: it scrapes the per-embed
// client key off the page, calls the getSources endpoint and, when the
// payload is encrypted, decrypts it with the cached shared key.
type MegaCloud struct {
	client *providerhttp.Client
	keys   *KeyCache
	logger *slog.Logger
}

// NewMegaCloud creates a MegaCloud extractor that fetches and caches the
// shared decrypt key through the given HTTP client.
func NewMegaCloud(client *providerhttp.Client, logger *slog.Logger) *MegaCloud {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MegaCloud{client: client, logger: logger}
	m.keys = NewKeyCache(DefaultKeyTTL, m.fetchSharedKey)
	return m
}

// NewMegaCloudWithKeyCache creates an extractor around an injected key
// cache; tests use this to avoid the live key endpoint.
func NewMegaCloudWithKeyCache(client *providerhttp.Client, keys *KeyCache, logger *slog.Logger) *MegaCloud {
	if logger == nil {
		logger = slog.Default()
	}
	return &MegaCloud{client: client, keys: keys, logger: logger}
}

type getSourcesResponse struct {
	Sources   json.RawMessage `json:"sources"`
	Tracks    []trackEntry    `json:"tracks"`
	Encrypted bool            `json:"encrypted"`
}

type sourceEntry struct {
	File  string `json:"file"`
	URL   string `json:"url"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

type trackEntry struct {
	File    string `json:"file"`
	URL     string `json:"url"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Lang    string `json:"lang"`
	SrcLang string `json:"srclang"`
}

// Extract resolves an embed URL into stream links with subtitle tracks
// attached. The source id is the embed URL's trailing path segment, taken
// verbatim; the host decides the id alphabet, not us.
func (m *MegaCloud) Extract(ctx context.Context, embedURL string) ([]types.StreamLink, error) {
	embed, err := url.Parse(embedURL)
	if err != nil || embed.Host == "" {
		return nil, fmt.Errorf("invalid embed url %q", embedURL)
	}

	sourceID := path.Base(embed.Path)
	if sourceID == "" || sourceID == "/" || sourceID == "." {
		return nil, fmt.Errorf("no source id in embed url %q", embedURL)
	}

	origin := fmt.Sprintf("%s://%s", embed.Scheme, embed.Host)
	referer := origin + "/"

	page, err := m.client.Get(ctx, embedURL, map[string]string{"Referer": referer})
	if err != nil {
		return nil, fmt.Errorf("fetch embed page: %w", err)
	}
	if page.IsError() {
		return nil, fmt.Errorf("embed page returned status %d", page.StatusCode())
	}

	clientKey := ExtractClientKey(page.String())
	if clientKey == "" {
		return nil, fmt.Errorf("no client key found on embed page %s", embedURL)
	}

	sourcesURL := fmt.Sprintf("%s/embed-2/v3/e-1/getSources?id=%s&_k=%s",
		origin, url.QueryEscape(sourceID), url.QueryEscape(clientKey))
	resp, err := m.client.Get(ctx, sourcesURL, map[string]string{
		"Referer":          referer,
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch sources: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("getSources returned status %d", resp.StatusCode())
	}

	var payload getSourcesResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("parse getSources response: %w", err)
	}

	entries, err := m.decodeSources(ctx, payload, clientKey)
	if err != nil {
		return nil, err
	}

	// Subtitle tracks live in the undecrypted response root.
	subtitles := parseTracks(payload.Tracks)

	links := make([]types.StreamLink, 0, len(entries))
	for _, e := range entries {
		fileURL := e.File
		if fileURL == "" {
			fileURL = e.URL
		}
		if fileURL == "" {
			continue
		}
		links = append(links, types.StreamLink{
			URL:       fileURL,
			Quality:   guessQuality(e.Label),
			Source:    "megacloud",
			Referer:   referer,
			Subtitles: subtitles,
		})
	}
	return links, nil
}

// decodeSources returns the plain source entries, decrypting the payload
// when the response declares it encrypted.
func (m *MegaCloud) decodeSources(ctx context.Context, payload getSourcesResponse, clientKey string) ([]sourceEntry, error) {
	if len(payload.Sources) == 0 {
		return nil, nil
	}

	var entries []sourceEntry
	if !payload.Encrypted {
		if err := json.Unmarshal(payload.Sources, &entries); err != nil {
			return nil, fmt.Errorf("parse plain sources: %w", err)
		}
		return entries, nil
	}

	var encrypted string
	if err := json.Unmarshal(payload.Sources, &encrypted); err != nil {
		return nil, fmt.Errorf("encrypted sources is not a string: %w", err)
	}

	sharedKey, err := m.keys.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch shared key: %w", err)
	}

	plain, err := Decrypt(encrypted, clientKey, sharedKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt sources: %w", err)
	}
	if err := json.Unmarshal([]byte(plain), &entries); err != nil {
		return nil, fmt.Errorf("parse decrypted sources: %w", err)
	}
	return entries, nil
}

// fetchSharedKey pulls the current shared decrypt key from the published
// key endpoint.
func (m *MegaCloud) fetchSharedKey(ctx context.Context) (string, error) {
	resp, err := m.client.Get(ctx, sharedKeyURL, nil)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("key endpoint returned status %d", resp.StatusCode())
	}
	var keys struct {
		Mega string `json:"mega"`
	}
	if err := json.Unmarshal(resp.Body(), &keys); err != nil {
		return "", fmt.Errorf("parse key response: %w", err)
	}
	if keys.Mega == "" {
		return "", fmt.Errorf("key endpoint returned no mega key")
	}
	return keys.Mega, nil
}

var (
	lkDBRe   = regexp.MustCompile(`window\._lk_db\s*=\s*\{([^}]*)\}`)
	quotedRe = regexp.MustCompile(`"([^"]*)"`)
	isThRe   = regexp.MustCompile(`<!--\s*_is_th:([A-Za-z0-9_-]+)\s*-->`)
	xyWsRe   = regexp.MustCompile(`window\._xy_ws\s*=\s*['"]([^'"]+)['"]`)
)

// ExtractClientKey scrapes the per-embed client key from the embed page
// HTML, trying each known hiding spot in a fixed order. It returns "" when
// no strategy matches.
func ExtractClientKey(html string) string {
	// window._lk_db = {...} splits the key across three quoted values.
	if m := lkDBRe.FindStringSubmatch(html); m != nil {
		parts := quotedRe.FindAllStringSubmatch(m[1], -1)
		if len(parts) >= 3 {
			return parts[0][1] + parts[1][1] + parts[2][1]
		}
	}

	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(html))
	if docErr == nil {
		if content, ok := doc.Find(`meta[name="_gg_fb"]`).Attr("content"); ok && content != "" {
			return content
		}
	}

	if m := isThRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}

	if docErr == nil {
		if key, ok := doc.Find("[data-dpi]").Attr("data-dpi"); ok && key != "" {
			return key
		}
		if nonce, ok := doc.Find("script[nonce]").Attr("nonce"); ok && nonce != "" {
			return nonce
		}
	}

	if m := xyWsRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

// guessQuality derives a quality label from a source entry the way the
// upstream player labels them; HLS-typed and unlabeled entries come back as
// "auto".
func guessQuality(label string) string {
	for _, q := range []string{"1080", "720", "480", "360"} {
		if strings.Contains(label, q) {
			return q + "p"
		}
	}
	return "auto"
}

func parseTracks(tracks []trackEntry) []types.SubtitleTrack {
	var subtitles []types.SubtitleTrack
	for _, t := range tracks {
		if t.Kind == "thumbnails" {
			continue
		}
		u := t.File
		if u == "" {
			u = t.URL
		}
		if u == "" {
			continue
		}
		lang := t.Lang
		if lang == "" {
			lang = t.SrcLang
		}
		label := t.Label
		if label == "" {
			label = t.Kind
		}
		subtitles = append(subtitles, types.SubtitleTrack{Label: label, URL: u, Lang: lang})
	}
	return subtitles
}
