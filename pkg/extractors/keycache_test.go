package extractors

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCacheFetchesOnce(t *testing.T) {
	var fetches atomic.Int32
	cache := NewKeyCache(time.Hour, func(ctx context.Context) (string, error) {
		fetches.Add(1)
		return "the-key", nil
	})

	for i := 0; i < 5; i++ {
		key, err := cache.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "the-key", key)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestKeyCacheConcurrentGetsFetchOnce(t *testing.T) {
	var fetches atomic.Int32
	cache := NewKeyCache(time.Hour, func(ctx context.Context) (string, error) {
		fetches.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "the-key", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := cache.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "the-key", key)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fetches.Load())
}

func TestKeyCacheErrorNotCached(t *testing.T) {
	var fetches atomic.Int32
	cache := NewKeyCache(time.Hour, func(ctx context.Context) (string, error) {
		if fetches.Add(1) == 1 {
			return "", errors.New("endpoint down")
		}
		return "recovered-key", nil
	})

	_, err := cache.Get(context.Background())
	require.Error(t, err)

	key, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recovered-key", key)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestKeyCacheInvalidate(t *testing.T) {
	var fetches atomic.Int32
	cache := NewKeyCache(time.Hour, func(ctx context.Context) (string, error) {
		fetches.Add(1)
		return "key", nil
	})

	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestKeyCacheExpiry(t *testing.T) {
	var fetches atomic.Int32
	cache := NewKeyCache(30*time.Millisecond, func(ctx context.Context) (string, error) {
		fetches.Add(1)
		return "key", nil
	})

	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}
