// Package memory provides an in-process record store for development and tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store keeps records in insertion order.
type Store struct {
	mu      sync.RWMutex
	records []crawler.Record
	seen    map[crawler.Record]struct{}
	unique  bool
	closed  bool
}

// NewStore constructs a Store. With unique set, identical records are stored once.
func NewStore(unique bool) *Store {
	return &Store{
		seen:   make(map[crawler.Record]struct{}),
		unique: unique,
	}
}

// Insert appends a record.
func (s *Store) Insert(_ context.Context, record crawler.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.unique {
		if _, dup := s.seen[record]; dup {
			return nil
		}
		s.seen[record] = struct{}{}
	}
	s.records = append(s.records, record)
	return nil
}

// FindByNameContains returns records whose name contains q, case-sensitively.
func (s *Store) FindByNameContains(_ context.Context, q string) ([]crawler.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := []crawler.Record{}
	for _, r := range s.records {
		if strings.Contains(r.Name, q) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len reports how many records are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close marks the store closed. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
