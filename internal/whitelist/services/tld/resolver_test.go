package tld

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/tivilsta/internal/whitelist/common/clock"
	"github.com/haukened/tivilsta/internal/whitelist/common/log"
	catalogrepo "github.com/haukened/tivilsta/internal/whitelist/repos/catalog"
)

type stubGateway struct {
	name    string
	entries []string
	err     error
	calls   int32
}

func (g *stubGateway) Name() string { return g.name }

func (g *stubGateway) Fetch(ctx context.Context) ([]string, error) {
	atomic.AddInt32(&g.calls, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.entries, g.err
}

// memStore is an in-memory catalog store safe for the resolver's goroutines.
type memStore struct {
	mu     sync.Mutex
	snaps  map[string]catalogrepo.Snapshot
	getErr error
	putErr error
}

func newMemStore() *memStore { return &memStore{snaps: map[string]catalogrepo.Snapshot{}} }

func (m *memStore) Get(name string) (catalogrepo.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return catalogrepo.Snapshot{}, false, m.getErr
	}
	s, ok := m.snaps[name]
	return s, ok, nil
}

func (m *memStore) Put(name string, s catalogrepo.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.snaps[name] = s
	return nil
}

func (m *memStore) Close() error { return nil }

var t0 = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

func TestResolve_MergesCatalogs(t *testing.T) {
	iana := &stubGateway{name: "iana", entries: []string{"com", "ORG", "uk"}}
	psl := &stubGateway{name: "psl", entries: []string{"co.uk", "com"}}
	store := newMemStore()
	clk := &clock.MockClock{CurrentTime: t0}

	r := NewResolver(store, clk, time.Hour, log.NewNoopLogger(), iana, psl)
	set, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"co.uk", "com", "org", "uk"}, set.Sorted())

	assert.Equal(t, []string{"com", "ORG", "uk"}, store.snaps["iana"].Entries)
	assert.True(t, store.snaps["psl"].FetchedAt.Equal(t0))
}

func TestResolve_FreshCacheSkipsDownload(t *testing.T) {
	store := newMemStore()
	store.snaps["iana"] = catalogrepo.Snapshot{Entries: []string{"net"}, FetchedAt: t0}
	iana := &stubGateway{name: "iana", entries: []string{"com"}}
	clk := &clock.MockClock{CurrentTime: t0.Add(30 * time.Minute)}

	r := NewResolver(store, clk, time.Hour, log.NewNoopLogger(), iana)
	set, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"net"}, set.Sorted())
	assert.Equal(t, int32(0), atomic.LoadInt32(&iana.calls))

	clk.Advance(time.Hour)
	set, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"com"}, set.Sorted())
	assert.Equal(t, int32(1), atomic.LoadInt32(&iana.calls))
}

func TestResolve_StaleCacheOnFailure(t *testing.T) {
	store := newMemStore()
	store.snaps["psl"] = catalogrepo.Snapshot{Entries: []string{"co.uk"}, FetchedAt: t0}
	psl := &stubGateway{name: "psl", err: errors.New("offline")}
	clk := &clock.MockClock{CurrentTime: t0.Add(48 * time.Hour)}

	r := NewResolver(store, clk, time.Hour, log.NewNoopLogger(), psl)
	set, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"co.uk"}, set.Sorted())
}

func TestResolve_PartialFailure(t *testing.T) {
	iana := &stubGateway{name: "iana", entries: []string{"com"}}
	psl := &stubGateway{name: "psl", err: errors.New("offline")}

	r := NewResolver(nil, nil, time.Hour, log.NewNoopLogger(), iana, psl)
	set, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"com"}, set.Sorted())
}

func TestResolve_AllFail(t *testing.T) {
	iana := &stubGateway{name: "iana", err: errors.New("dns failure")}
	psl := &stubGateway{name: "psl", err: errors.New("offline")}

	r := NewResolver(nil, nil, time.Hour, log.NewNoopLogger(), iana, psl)
	set, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCatalog)
	assert.Contains(t, err.Error(), "iana: dns failure")
	assert.Contains(t, err.Error(), "psl: offline")
	assert.Equal(t, 0, set.Len())
}

func TestResolve_OneFailureDoesNotCancelOthers(t *testing.T) {
	psl := &stubGateway{name: "psl", err: errors.New("offline")}
	iana := &stubGateway{name: "iana", entries: []string{"com"}}

	r := NewResolver(nil, nil, time.Hour, log.NewNoopLogger(), psl, iana)
	set, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Contains("com"))
}

func TestResolve_CancelledContextReachesGateways(t *testing.T) {
	iana := &stubGateway{name: "iana", entries: []string{"com"}}
	psl := &stubGateway{name: "psl", entries: []string{"co.uk"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(nil, nil, time.Hour, log.NewNoopLogger(), iana, psl)
	_, err := r.Resolve(ctx)
	require.ErrorIs(t, err, ErrNoCatalog)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_NoGateways(t *testing.T) {
	r := NewResolver(nil, nil, 0, log.NewNoopLogger())
	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestResolve_StoreErrorsAreNotFatal(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("corrupt")
	store.putErr = errors.New("read-only")
	iana := &stubGateway{name: "iana", entries: []string{"com"}}

	r := NewResolver(store, nil, time.Hour, log.NewNoopLogger(), iana)
	set, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Contains("com"))
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{
		" COM ",
		".org.",
		"",
		"*.ck",
		"!www.ck",
		"a..b",
		"рф",
		"xn--p1ai",
	})
	assert.Equal(t, []string{"com", "org", "рф", "xn--p1ai", "xn--p1ai"}, got)
}

func TestSource_ResolvesOnce(t *testing.T) {
	iana := &stubGateway{name: "iana", entries: []string{"com", "org"}}
	src := NewSource(context.Background(), NewResolver(nil, nil, time.Hour, log.NewNoopLogger(), iana))

	assert.Equal(t, 2, src.TLDs().Len())
	assert.Equal(t, 2, src.TLDs().Len())
	assert.Equal(t, int32(1), atomic.LoadInt32(&iana.calls))
	assert.NoError(t, src.Err())
}

func TestSource_FailureYieldsEmptySet(t *testing.T) {
	iana := &stubGateway{name: "iana", err: errors.New("offline")}
	src := NewSource(context.Background(), NewResolver(nil, nil, time.Hour, log.NewNoopLogger(), iana))

	assert.Equal(t, 0, src.TLDs().Len())
	assert.ErrorIs(t, src.Err(), ErrNoCatalog)
}
