// Package memory provides an in-memory product store for development and tests.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/product"
)

// ProductStore keeps rows in insertion order.
type ProductStore struct {
	mu   sync.RWMutex
	rows []product.Row
}

var _ crawler.ProductStore = (*ProductStore)(nil)

// NewProductStore constructs an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{}
}

// Insert appends row with the next sequential id.
func (s *ProductStore) Insert(_ context.Context, row product.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row.ID = strconv.Itoa(len(s.rows) + 1)
	s.rows = append(s.rows, row)
	return row.ID, nil
}

// Exists reports whether any row has exactly this title.
func (s *ProductStore) Exists(_ context.Context, title string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rows {
		if r.Title != nil && *r.Title == title {
			return true, nil
		}
	}
	return false, nil
}

// Rows returns a copy of every stored row.
func (s *ProductStore) Rows() []product.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]product.Row(nil), s.rows...)
}

// Len returns the number of stored rows.
func (s *ProductStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Close is a no-op.
func (s *ProductStore) Close() {}
