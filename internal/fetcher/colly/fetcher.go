// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	// UserAgent pins a fixed agent. Empty means a random agent per request.
	UserAgent string
	Timeout   time.Duration
	// Wrap decorates the pooled base transport, e.g. with a rate limiter.
	Wrap func(http.RoundTripper) http.RoundTripper
}

// Fetcher implements crawler.Fetcher using the Colly collector. Clones of the
// base collector share its cookie jar, so one Fetcher holds one session.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher with a fresh cookie jar.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())

	var transport http.RoundTripper = newHTTPTransport()
	if cfg.Wrap != nil {
		transport = cfg.Wrap(transport)
	}
	c.WithTransport(transport)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c.SetRequestTimeout(timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Factory returns a crawler.FetcherFactory producing independent sessions.
func Factory(cfg Config) crawler.FetcherFactory {
	return func() crawler.Fetcher {
		return New(cfg)
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(request.Referer, request.Headers, time.Now(), &result, &fetchErr)

	err := f.runCollector(ctx, &fetchErr, func() error {
		return collector.Visit(request.URL)
	})
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	return result, nil
}

// PostForm submits a urlencoded form using the same session as Fetch.
func (f *Fetcher) PostForm(ctx context.Context, request crawler.FormRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(request.Referer, request.Headers, time.Now(), &result, &fetchErr)

	err := f.runCollector(ctx, &fetchErr, func() error {
		return collector.Post(request.URL, request.Form)
	})
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	referer string,
	headers http.Header,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	} else {
		extensions.RandomUserAgent(collector)
	}
	f.configureCollectorHooks(collector, referer, headers, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	referer string,
	headers http.Header,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(headers, r)
		if referer != "" {
			r.Headers.Set("Referer", referer)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusMultipleChoices {
			target := ""
			if r.Request != nil && r.Request.URL != nil {
				target = r.Request.URL.String()
			}
			*fetchErr = &crawler.StatusError{URL: target, Code: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, fetchErr *error, visit func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		var statusErr *crawler.StatusError
		if errors.As(*fetchErr, &statusErr) {
			return fmt.Errorf("colly response failed: %w", statusErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
