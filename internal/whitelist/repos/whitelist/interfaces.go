package whitelist

import "github.com/haukened/tivilsta/internal/whitelist/domain"

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the ruler needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory constructs BloomFilter instances sized for a capacity and FP rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache memoizes decisions by canonical subject with basic metrics.
// Implementations must be safe for concurrent use.
type DecisionCache interface {
	Get(subject string) (domain.Decision, bool)
	Put(subject string, d domain.Decision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// TLDSource supplies the resolved TLD set used to expand RZD tokens.
// domain.TLDSet satisfies it for a fixed set.
type TLDSource interface {
	TLDs() domain.TLDSet
}
