package db

import (
	"github.com/dgraph-io/ristretto"
)

// IDCache is an optional read-through cache in front of RepoRow/FileRow
// lookups, keyed by a caller-chosen string (repo name, or "<repoID>/<file
// name>"). A miss always falls through to the SQL lookup underneath — the
// cache only shaves off repeated round trips for names a sync has already
// resolved once.
type IDCache struct {
	cache *ristretto.Cache
}

// NewIDCache builds an IDCache sized for a few hundred thousand distinct
// names, which comfortably covers a single large repository's file set.
func NewIDCache() (*IDCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000_000,
		MaxCost:     1 << 26, // 64 MiB
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &IDCache{cache: c}, nil
}

// Get returns the cached id for key, if present.
func (c *IDCache) Get(key string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

// Set stores id under key with a nominal cost of 1, waiting until the
// write is visible to Get.
func (c *IDCache) Set(key string, id int64) {
	if c == nil {
		return
	}
	c.cache.Set(key, id, 1)
	c.cache.Wait()
}
