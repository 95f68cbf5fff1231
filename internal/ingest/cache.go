package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/customer-intel/pkg/filestore"
)

// storeCache memoizes storage-area name to id resolution. Concurrent
// lookups of the same name coalesce into one EnsureStore call; failures are
// not cached so the next lookup retries.
type storeCache struct {
	files filestore.Client

	mu    sync.RWMutex
	ids   map[string]string
	group singleflight.Group
}

func newStoreCache(files filestore.Client) *storeCache {
	return &storeCache{
		files: files,
		ids:   make(map[string]string),
	}
}

// resolve returns the storage-area id for a name, creating the area when it
// does not exist yet.
func (c *storeCache) resolve(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	id, ok := c.ids[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		info, err := c.files.EnsureStore(ctx, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.ids[name] = info.ID
		c.mu.Unlock()
		return info.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
