// Package tld resolves the TLD set used by RZD rules from the IANA root zone
// database and the public suffix list, with a bbolt-backed cache in front.
package tld

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/multierr"
	"golang.org/x/net/idna"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/tivilsta/internal/whitelist/common/clock"
	"github.com/haukened/tivilsta/internal/whitelist/common/log"
	"github.com/haukened/tivilsta/internal/whitelist/common/utils"
	"github.com/haukened/tivilsta/internal/whitelist/domain"
	catalogrepo "github.com/haukened/tivilsta/internal/whitelist/repos/catalog"
)

// ErrNoCatalog is returned when no catalog could be fetched or read from cache.
var ErrNoCatalog = errors.New("no TLD catalog available")

// Resolver merges every configured catalog into one TLDSet.
type Resolver struct {
	gateways []CatalogGateway
	store    CatalogStore
	clock    clock.Clock
	ttl      time.Duration
	logger   log.Logger
}

// NewResolver wires the catalog gateways to store. A nil store disables caching
// and a nil clock uses the wall clock.
func NewResolver(store CatalogStore, clk clock.Clock, ttl time.Duration, logger log.Logger, gateways ...CatalogGateway) *Resolver {
	if store == nil {
		store = catalogrepo.NewNopStore()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Resolver{gateways: gateways, store: store, clock: clk, ttl: ttl, logger: logger}
}

// Resolve loads each catalog concurrently. A fresh cached copy is used as is;
// otherwise the catalog is downloaded and cached, falling back to a stale copy
// on failure. Resolve fails only when every catalog is unavailable.
func (r *Resolver) Resolve(ctx context.Context) (domain.TLDSet, error) {
	results := make([][]string, len(r.gateways))
	errs := make([]error, len(r.gateways))

	// A failed catalog must not cancel the others: errors are kept per slot
	// and the goroutines report success to the group. Cancelling ctx still
	// stops every download through gctx.
	g, gctx := errgroup.WithContext(ctx)
	for i, gw := range r.gateways {
		g.Go(func() error {
			results[i], errs[i] = r.load(gctx, gw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.TLDSet{}, err
	}

	var (
		entries []string
		failed  error
		okCount int
	)
	for i, gw := range r.gateways {
		if errs[i] != nil {
			failed = multierr.Append(failed, fmt.Errorf("%s: %w", gw.Name(), errs[i]))
			r.logger.Warn(map[string]any{"catalog": gw.Name(), "error": errs[i]}, "TLD catalog unavailable")
			continue
		}
		okCount++
		entries = append(entries, results[i]...)
	}
	if okCount == 0 {
		if failed == nil {
			return domain.TLDSet{}, ErrNoCatalog
		}
		return domain.TLDSet{}, fmt.Errorf("%w: %w", ErrNoCatalog, failed)
	}

	set := domain.NewTLDSet(Normalize(entries)...)
	r.logger.Info(map[string]any{"catalogs": okCount, "tlds": set.Len()}, "TLD set resolved")
	return set, nil
}

func (r *Resolver) load(ctx context.Context, gw CatalogGateway) ([]string, error) {
	name := gw.Name()
	cached, found, err := r.store.Get(name)
	if err != nil {
		r.logger.Warn(map[string]any{"catalog": name, "error": err}, "Catalog cache read failed")
		found = false
	}
	if found && cached.IsFresh(r.clock.Now(), r.ttl) {
		r.logger.Debug(map[string]any{"catalog": name, "entries": len(cached.Entries)}, "catalog_cache_hit")
		return cached.Entries, nil
	}

	fetched, ferr := gw.Fetch(ctx)
	if ferr != nil {
		if found {
			r.logger.Warn(map[string]any{"catalog": name, "fetched_at": cached.FetchedAt, "error": ferr}, "Catalog download failed, using stale cache")
			return cached.Entries, nil
		}
		return nil, ferr
	}

	snap := catalogrepo.Snapshot{Entries: fetched, FetchedAt: r.clock.Now()}
	if err := r.store.Put(name, snap); err != nil {
		r.logger.Warn(map[string]any{"catalog": name, "error": err}, "Catalog cache write failed")
	}
	r.logger.Debug(map[string]any{"catalog": name, "entries": len(fetched)}, "catalog_fetched")
	return fetched, nil
}

// Normalize canonicalizes catalog entries and drops names that are not valid
// domain names. Internationalized entries are kept in both their Unicode and
// punycode forms so either spelling of a subject matches.
func Normalize(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.Trim(utils.CanonicalName(e), ".")
		// PSL wildcard and exception rules are not literal suffixes.
		if e == "" || strings.ContainsAny(e, "*!") {
			continue
		}
		if _, ok := dns.IsDomainName(e); !ok {
			continue
		}
		out = append(out, e)
		if ascii, err := idna.Lookup.ToASCII(e); err == nil && ascii != e {
			out = append(out, ascii)
		}
	}
	return out
}

// Source adapts a Resolver to the ruler's TLD source. The catalogs are
// resolved on first use only; a failure is logged and yields an empty set.
type Source struct {
	resolver *Resolver
	ctx      context.Context

	once sync.Once
	set  domain.TLDSet
	err  error
}

// NewSource returns a lazy TLD source. ctx bounds the downloads.
func NewSource(ctx context.Context, r *Resolver) *Source {
	return &Source{resolver: r, ctx: ctx}
}

// TLDs resolves the catalogs once and returns the merged set.
func (s *Source) TLDs() domain.TLDSet {
	s.once.Do(func() {
		s.set, s.err = s.resolver.Resolve(s.ctx)
		if s.err != nil {
			s.resolver.logger.Error(map[string]any{"error": s.err}, "RZD rules will not expand")
		}
	})
	return s.set
}

// Err reports the resolution error, if any, after TLDs has run.
func (s *Source) Err() error { return s.err }
