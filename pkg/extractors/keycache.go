package extractors

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultKeyTTL is how long a fetched shared decrypt key stays fresh.
const DefaultKeyTTL = 6 * time.Hour

const keyCacheEntry = "mega"

// KeyCache caches the MegaCloud shared decrypt key for the process lifetime,
// refreshing it after the TTL expires. The refresh path is guarded by a
// mutex with a double check so concurrent callers fetch the key once.
type KeyCache struct {
	mu    sync.Mutex
	store *gocache.Cache
	ttl   time.Duration
	fetch func(ctx context.Context) (string, error)
}

// NewKeyCache builds a cache around the given fetch function. A zero ttl
// falls back to DefaultKeyTTL.
func NewKeyCache(ttl time.Duration, fetch func(ctx context.Context) (string, error)) *KeyCache {
	if ttl == 0 {
		ttl = DefaultKeyTTL
	}
	return &KeyCache{
		store: gocache.New(ttl, 10*time.Minute),
		ttl:   ttl,
		fetch: fetch,
	}
}

// Get returns the cached key, fetching a fresh one when the cached value has
// aged out.
func (k *KeyCache) Get(ctx context.Context) (string, error) {
	if v, ok := k.store.Get(keyCacheEntry); ok {
		return v.(string), nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if v, ok := k.store.Get(keyCacheEntry); ok {
		return v.(string), nil
	}

	key, err := k.fetch(ctx)
	if err != nil {
		return "", err
	}
	k.store.Set(keyCacheEntry, key, k.ttl)
	return key, nil
}

// Invalidate drops the cached key so the next Get refetches.
func (k *KeyCache) Invalidate() {
	k.store.Delete(keyCacheEntry)
}
