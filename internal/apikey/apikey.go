// Package apikey caches a shared upstream API key and refreshes it when the
// upstream starts rejecting it.
package apikey

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
	"github.com/JakeFAU/repack-aggregator/internal/metrics"
)

// ErrKeyNotFound is returned when the source page no longer embeds a key.
var ErrKeyNotFound = errors.New("api key not found in source page")

var keyPattern = regexp.MustCompile(`"rawgApiKey":"([a-zA-Z0-9]+)"`)

// Source produces a fresh key.
type Source interface {
	FetchKey(ctx context.Context) (string, error)
}

// PageSource scrapes the key out of a public page.
type PageSource struct {
	fetcher crawler.Fetcher
	url     string
}

// NewPageSource builds a PageSource reading url through fetcher.
func NewPageSource(fetcher crawler.Fetcher, url string) *PageSource {
	return &PageSource{fetcher: fetcher, url: url}
}

// FetchKey downloads the page and extracts the embedded key.
func (s *PageSource) FetchKey(ctx context.Context) (string, error) {
	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: s.url})
	if err != nil {
		return "", fmt.Errorf("fetch key page: %w", err)
	}
	m := keyPattern.FindSubmatch(resp.Body)
	if m == nil {
		return "", ErrKeyNotFound
	}
	return string(m[1]), nil
}

// Rotator holds the shared key. Calls read it under a read lock; a refresh
// holds the write lock for the duration of the scrape.
type Rotator struct {
	mu     sync.RWMutex
	key    string
	source Source
	logger *zap.Logger
}

// NewRotator builds a Rotator with an empty key.
func NewRotator(source Source, logger *zap.Logger) *Rotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{source: source, logger: logger}
}

// Init populates the key once at startup. On failure the key stays empty and
// the first rejected call triggers a refresh.
func (r *Rotator) Init(ctx context.Context) error {
	if _, err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("initial api key: %w", err)
	}
	return nil
}

// Key returns the cached key.
func (r *Rotator) Key() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.key
}

// Refresh re-scrapes the key and replaces the cached value. The old key is
// kept when the scrape fails.
func (r *Rotator) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, err := r.source.FetchKey(ctx)
	if err != nil {
		metrics.ObserveAPIKeyRefresh(metrics.StatusError)
		return r.key, err
	}
	metrics.ObserveAPIKeyRefresh(metrics.StatusSuccess)
	r.key = key
	r.logger.Info("api key refreshed")
	return key, nil
}

// Do calls fn with the cached key. If the upstream rejects the key, the key
// is refreshed and fn is retried exactly once; the retry's result is returned.
func (r *Rotator) Do(ctx context.Context, fn func(ctx context.Context, key string) error) error {
	err := fn(ctx, r.Key())
	if !Rejected(err) {
		return err
	}
	r.logger.Warn("api key rejected, refreshing", zap.Error(err))
	key, refreshErr := r.Refresh(ctx)
	if refreshErr != nil {
		return errors.Join(err, fmt.Errorf("refresh api key: %w", refreshErr))
	}
	return fn(ctx, key)
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, r *Rotator, fn func(ctx context.Context, key string) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context, key string) error {
		v, err := fn(ctx, key)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Rejected reports whether err is an upstream authorization failure.
func Rejected(err error) bool {
	var statusErr *crawler.StatusError
	return errors.As(err, &statusErr) && statusErr.Unauthorized()
}
