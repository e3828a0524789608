package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/tivilsta/internal/whitelist/domain"
	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist"
)

// decisionCache is an LRU-backed implementation of whitelist.DecisionCache.
// It tracks hits, misses, and evictions.
type decisionCache struct {
	lru       *lru.Cache[string, domain.Decision]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a DecisionCache with the given capacity. If size <= 0, the
// ruler's no-op cache is returned, which always misses.
func New(size int) (whitelist.DecisionCache, error) {
	if size <= 0 {
		return whitelist.NewDisabledCache(), nil
	}

	dc := &decisionCache{}
	cache, err := lru.NewWithEvict(size, func(_ string, _ domain.Decision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

func (c *decisionCache) Get(subject string) (domain.Decision, bool) {
	if val, ok := c.lru.Get(subject); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return domain.Decision{}, false
}

func (c *decisionCache) Put(subject string, d domain.Decision) {
	c.lru.Add(subject, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

var _ whitelist.DecisionCache = (*decisionCache)(nil)
