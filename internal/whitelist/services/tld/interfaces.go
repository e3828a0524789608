package tld

import (
	"context"

	catalogrepo "github.com/haukened/tivilsta/internal/whitelist/repos/catalog"
)

// CatalogGateway downloads one named catalog.
type CatalogGateway interface {
	Name() string
	Fetch(ctx context.Context) ([]string, error)
}

// CatalogStore persists downloaded catalogs between runs.
type CatalogStore = catalogrepo.Store
