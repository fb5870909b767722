package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
	"github.com/JakeFAU/repack-aggregator/internal/extract"
	"github.com/JakeFAU/repack-aggregator/internal/normalize"
)

// ErrMissingCredentials is returned by Authenticate when a gated provider has
// no configured username or password.
var ErrMissingCredentials = errors.New("provider credentials not configured")

// Credentials are the login pair for gated providers.
type Credentials struct {
	Username string
	Password string
}

// Options tune an Adapter.
type Options struct {
	MinBodyBytes int
	Credentials  Credentials
	Logger       *zap.Logger
}

// Adapter runs one provider's fetch, extraction and normalization through a
// single fetcher session.
type Adapter struct {
	spec      Spec
	fetcher   crawler.Fetcher
	extractor *extract.Extractor
	creds     Credentials
	logger    *zap.Logger
}

// NewAdapter binds spec to fetcher.
func NewAdapter(spec Spec, fetcher crawler.Fetcher, opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		spec:      spec,
		fetcher:   fetcher,
		extractor: extract.New(spec.Selectors, opts.MinBodyBytes),
		creds:     opts.Credentials,
		logger:    logger.With(zap.String("provider", string(spec.Kind))),
	}
}

// Spec returns the adapter's provider description.
func (a *Adapter) Spec() Spec { return a.spec }

// DiscoverPageCount reads the total page count from the index page. Any
// failure degrades to a single page.
func (a *Adapter) DiscoverPageCount(ctx context.Context) int {
	if a.spec.Selectors.Pagination == "" {
		return 1
	}
	resp, err := a.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     a.spec.IndexURL(),
		Referer: a.spec.Referer(),
	})
	if err != nil {
		a.logger.Warn("page discovery failed, assuming one page", zap.Error(err))
		return 1
	}
	n, ok := a.extractor.PageCount(resp.Body)
	if !ok {
		a.logger.Warn("pagination indicator missing, assuming one page", zap.String("url", a.spec.IndexURL()))
		return 1
	}
	return n
}

type authToken struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Authenticate performs the token-then-form login for gated providers. The
// resulting cookies live in the adapter's fetcher for the rest of the run.
// Ungated providers return nil immediately.
func (a *Adapter) Authenticate(ctx context.Context) error {
	auth := a.spec.Auth
	if auth == nil {
		return nil
	}
	if a.creds.Username == "" || a.creds.Password == "" {
		return fmt.Errorf("%s: %w", a.spec.Kind, ErrMissingCredentials)
	}
	loginURL := a.spec.join(auth.LoginPath)

	resp, err := a.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     a.spec.join(auth.TokenPath),
		Referer: loginURL,
		Headers: http.Header{"X-Requested-With": {"XMLHttpRequest"}},
	})
	if err != nil {
		return fmt.Errorf("fetch auth token: %w", err)
	}
	var token authToken
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return fmt.Errorf("decode auth token: %w", err)
	}
	if token.Field == "" || token.Value == "" {
		return fmt.Errorf("auth token response missing field or value")
	}

	form := map[string]string{
		"login_name":     a.creds.Username,
		"login_password": a.creds.Password,
		"login":          "submit",
		token.Field:      token.Value,
	}
	if _, err := a.fetcher.PostForm(ctx, crawler.FormRequest{
		URL:     loginURL,
		Referer: loginURL,
		Form:    form,
		Headers: http.Header{"Origin": {loginURL}},
	}); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	a.logger.Info("authenticated")
	return nil
}

// FetchPage downloads listing page n with the session's cookies.
func (a *Adapter) FetchPage(ctx context.Context, n int) ([]byte, error) {
	pageURL := a.spec.PageURL(n)
	resp, err := a.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     pageURL,
		Referer: a.spec.Referer(),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", n, err)
	}
	return resp.Body, nil
}

// ExtractEntries applies the provider's selectors to a fetched page.
func (a *Adapter) ExtractEntries(body []byte, pageURL string) []crawler.Entry {
	return a.extractor.Entries(body, pageURL)
}

// Normalize applies the provider formatter, then the shared name pipeline.
func (a *Adapter) Normalize(raw string) string {
	if a.spec.Format != nil {
		raw = a.spec.Format(raw)
	}
	return normalize.Name(raw)
}

// Records turns extracted entries into storable records, dropping entries
// whose name normalizes to nothing.
func (a *Adapter) Records(entries []crawler.Entry) []crawler.Record {
	records := make([]crawler.Record, 0, len(entries))
	for _, entry := range entries {
		name := a.Normalize(entry.RawTitle)
		if name == "" {
			continue
		}
		records = append(records, crawler.Record{
			Name:     name,
			Repacker: a.spec.Repacker,
			Link:     entry.Link,
		})
	}
	return records
}
