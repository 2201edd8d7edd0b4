package store

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// recordCache is an in-process LRU in front of the content record index.
// Entries are only ever added after the index write succeeded, so a hit is
// never newer than what index.db holds.
type recordCache struct {
	items *lru.Cache[string, []string]
}

func newRecordCache(size int) (*recordCache, error) {
	items, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}
	return &recordCache{items: items}, nil
}

func (c *recordCache) Get(id identity) ([]string, bool) {
	return c.items.Get(id.key())
}

func (c *recordCache) Set(id identity, hashes []string) {
	c.items.Add(id.key(), hashes)
}

// Add appends hash to the cached set for id, if the set is cached.
func (c *recordCache) Add(id identity, hash string) {
	hashes, ok := c.items.Get(id.key())
	if !ok {
		return
	}
	for _, h := range hashes {
		if h == hash {
			return
		}
	}
	next := make([]string, 0, len(hashes)+1)
	next = append(next, hashes...)
	c.items.Add(id.key(), append(next, hash))
}
