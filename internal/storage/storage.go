// Package storage holds what the product store implementations share.
// Implementations live in the postgres, mongo and memory subpackages; all
// of them satisfy crawler.ProductStore.
package storage

import "errors"

// ErrNotConfigured is returned by a store that was never opened or has
// already been closed.
var ErrNotConfigured = errors.New("product store is not configured")

// Provider names accepted by storage.provider.
const (
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderMongo    = "mongo"
)
