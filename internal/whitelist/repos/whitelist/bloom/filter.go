package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist"
)

// filter wraps a bits-and-blooms filter. Add takes the write lock and
// MightContain the read lock, so queries stay concurrent.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

// factory implements whitelist.BloomFactory on top of the sizer formulas.
type factory struct {
	sizer whitelist.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() whitelist.BloomFactory { return factory{sizer: NewSizer()} }

// New constructs a filter sized for capacity keys at the target fpRate.
func (f factory) New(capacity uint64, fpRate float64) whitelist.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

var _ whitelist.BloomFilter = (*filter)(nil)
