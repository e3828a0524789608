package catalog

import "time"

// Snapshot is one downloaded catalog as it was stored.
type Snapshot struct {
	Entries   []string
	FetchedAt time.Time
}

// IsFresh reports whether the snapshot is younger than ttl at now.
// A zero ttl means cached catalogs never expire.
func (s Snapshot) IsFresh(now time.Time, ttl time.Duration) bool {
	if s.FetchedAt.IsZero() {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return now.Sub(s.FetchedAt) < ttl
}

// Store persists catalog snapshots between runs, keyed by catalog name
// ("iana", "psl").
type Store interface {
	Get(name string) (Snapshot, bool, error)
	Put(name string, s Snapshot) error
	Close() error
}

// nopStore keeps nothing; every Get misses.
type nopStore struct{}

// NewNopStore returns a Store that never caches. Used when no cache path is configured.
func NewNopStore() Store { return nopStore{} }

func (nopStore) Get(string) (Snapshot, bool, error) { return Snapshot{}, false, nil }
func (nopStore) Put(string, Snapshot) error         { return nil }
func (nopStore) Close() error                       { return nil }
