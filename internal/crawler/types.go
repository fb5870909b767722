package crawler

import (
	"fmt"
	"net/http"
	"time"
)

// Record is a single persisted repack listing.
type Record struct {
	Name     string `json:"name"`
	Repacker string `json:"repacker"`
	Link     string `json:"link"`
}

// Entry is a raw (title, link) pair pulled out of a provider page before normalization.
type Entry struct {
	RawTitle string
	Link     string
}

// FetchRequest captures everything needed to GET a provider URL.
type FetchRequest struct {
	URL     string
	Referer string
	Headers http.Header
}

// FormRequest is a urlencoded POST, used by gated providers to log in.
type FormRequest struct {
	URL     string
	Referer string
	Form    map[string]string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError reports a non-success HTTP status from an upstream site.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Unauthorized reports whether the upstream denied the request's credentials.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}
