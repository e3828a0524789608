// Package catalog downloads the TLD catalogs used to expand RZD rules.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/haukened/tivilsta/internal/whitelist/gateways/transport"
)

// Catalog names, also used as cache keys.
const (
	IANA = "iana"
	PSL  = "psl"
)

// Gateway knows how to turn one remote document into a list of entries.
type Gateway interface {
	Name() string
	Fetch(ctx context.Context) ([]string, error)
}

// ianaGateway reads the IANA root zone database. The document is an object
// keyed by TLD; the values (whois servers) are ignored.
type ianaGateway struct {
	url     string
	fetcher transport.Fetcher
}

// NewIANA returns a Gateway for the IANA TLD database at url.
func NewIANA(url string, f transport.Fetcher) Gateway {
	return &ianaGateway{url: url, fetcher: f}
}

func (g *ianaGateway) Name() string { return IANA }

func (g *ianaGateway) Fetch(ctx context.Context) ([]string, error) {
	body, err := g.fetcher.Fetch(ctx, g.url)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s catalog: %w", IANA, err)
	}
	out := make([]string, 0, len(doc))
	for tld := range doc {
		out = append(out, tld)
	}
	sort.Strings(out)
	return out, nil
}

// pslGateway reads the public suffix list. The document maps each extension
// to the suffixes registered under it; only the suffixes are kept.
type pslGateway struct {
	url     string
	fetcher transport.Fetcher
}

// NewPSL returns a Gateway for the public suffix document at url.
func NewPSL(url string, f transport.Fetcher) Gateway {
	return &pslGateway{url: url, fetcher: f}
}

func (g *pslGateway) Name() string { return PSL }

func (g *pslGateway) Fetch(ctx context.Context) ([]string, error) {
	body, err := g.fetcher.Fetch(ctx, g.url)
	if err != nil {
		return nil, err
	}
	var doc map[string][]string
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s catalog: %w", PSL, err)
	}
	var out []string
	for _, suffixes := range doc {
		out = append(out, suffixes...)
	}
	sort.Strings(out)
	return out, nil
}
