package crawler

import "context"

// Fetcher performs outbound requests against provider sites.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
	PostForm(ctx context.Context, request FormRequest) (FetchResponse, error)
}

// FetcherFactory builds a fresh Fetcher. Each provider run gets its own so that
// session cookies never leak between providers.
type FetcherFactory func() Fetcher

// Store is the persistence boundary for repack records.
type Store interface {
	// Insert appends a record. It fails only when the underlying connection does.
	Insert(ctx context.Context, record Record) error
	// FindByNameContains returns records whose name contains q (case-sensitive).
	// An empty result is not an error.
	FindByNameContains(ctx context.Context, q string) ([]Record, error)
	Close() error
}
