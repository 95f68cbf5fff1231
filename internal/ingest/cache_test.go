package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCacheResolvesOnce(t *testing.T) {
	files := newMockFiles()
	cache := newStoreCache(files)

	id, err := cache.resolve(context.Background(), "news/acme.com")
	require.NoError(t, err)
	assert.Equal(t, "vs-1", id)

	// Second resolve hits the cache, not the API.
	id, err = cache.resolve(context.Background(), "news/acme.com")
	require.NoError(t, err)
	assert.Equal(t, "vs-1", id)
	assert.Equal(t, 1, files.ensureCalls)
}

func TestStoreCacheCoalescesConcurrentResolves(t *testing.T) {
	files := newMockFiles()
	cache := newStoreCache(files)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := cache.resolve(context.Background(), "news/acme.com")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "vs-1", id)
	}
}

func TestStoreCacheDoesNotCacheFailures(t *testing.T) {
	files := newMockFiles()
	files.ensureErr = errors.New("rate limited")
	cache := newStoreCache(files)

	_, err := cache.resolve(context.Background(), "news/acme.com")
	require.Error(t, err)

	files.ensureErr = nil
	id, err := cache.resolve(context.Background(), "news/acme.com")
	require.NoError(t, err)
	assert.Equal(t, "vs-1", id)
	assert.Equal(t, 2, files.ensureCalls)
}

func TestStoreCacheDistinctNamesGetDistinctIDs(t *testing.T) {
	files := newMockFiles()
	cache := newStoreCache(files)

	a, err := cache.resolve(context.Background(), "news/acme.com")
	require.NoError(t, err)
	b, err := cache.resolve(context.Background(), "news/rival-one.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
