// Package search answers name lookups against the record store.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
)

var (
	// ErrNotFound means the query matched no records.
	ErrNotFound = errors.New("torrent not found")
	// ErrEmptyQuery means the query was blank.
	ErrEmptyQuery = errors.New("name is required")
)

// Hit is one search result.
type Hit struct {
	Repacker string
	Link     string
}

// Finder is the read side of crawler.Store.
type Finder interface {
	FindByNameContains(ctx context.Context, q string) ([]crawler.Record, error)
}

// Service runs searches.
type Service struct {
	store Finder
}

// NewService builds a Service over store.
func NewService(store Finder) *Service {
	return &Service{store: store}
}

// Search returns every record whose name contains name, case-sensitively and
// in store order. The query is used verbatim; only an all-blank query is rejected.
func (s *Service) Search(ctx context.Context, name string) ([]Hit, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyQuery
	}
	records, err := s.store.FindByNameContains(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	hits := make([]Hit, 0, len(records))
	for _, r := range records {
		hits = append(hits, Hit{Repacker: r.Repacker, Link: r.Link})
	}
	return hits, nil
}
