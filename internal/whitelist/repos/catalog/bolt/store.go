package bolt

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/tivilsta/internal/whitelist/repos/catalog"
)

var (
	bucketCatalogs = []byte("catalogs")
	bucketMeta     = []byte("meta")
)

// boltStore implements catalog.Store using bbolt. Entries are stored
// newline-joined under the catalog name; the fetch time lives in the meta
// bucket as big-endian unix seconds.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
// Parent directories are created as needed.
func New(path string) (catalog.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog cache dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open catalog cache %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCatalogs); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Get(name string) (catalog.Snapshot, bool, error) {
	var (
		snap  catalog.Snapshot
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCatalogs)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		// v is only valid inside the transaction; strings.Split copies.
		if len(v) > 0 {
			snap.Entries = strings.Split(string(v), "\n")
		}
		if m := tx.Bucket(bucketMeta); m != nil {
			if ts := m.Get(fetchedKey(name)); len(ts) == 8 {
				snap.FetchedAt = time.Unix(int64(binary.BigEndian.Uint64(ts)), 0)
			}
		}
		return nil
	})
	return snap, found, err
}

func (s *boltStore) Put(name string, snap catalog.Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCatalogs).Put([]byte(name), []byte(strings.Join(snap.Entries, "\n"))); err != nil {
			return err
		}
		ts := make([]byte, 8)
		binary.BigEndian.PutUint64(ts, uint64(snap.FetchedAt.Unix()))
		return tx.Bucket(bucketMeta).Put(fetchedKey(name), ts)
	})
}

func fetchedKey(name string) []byte {
	return []byte(name + "/fetched")
}

var _ catalog.Store = (*boltStore)(nil)
