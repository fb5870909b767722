package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/repack-aggregator/internal/search"
)

func TestServer_FindTorrent_ReturnsPairs(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{hits: []search.Hit{
		{Repacker: "FitGirl", Link: "https://www.1337xx.to/torrent/1/elden-ring/"},
		{Repacker: "DODI", Link: "https://www.1337xx.to/torrent/9/elden-ring-dodi/"},
	}}
	server := NewServer(searcher, &fakeCatalog{}, Options{}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/torrent?name=Elden+Ring", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `[
		["FitGirl","https://www.1337xx.to/torrent/1/elden-ring/"],
		["DODI","https://www.1337xx.to/torrent/9/elden-ring-dodi/"]
	]`, rec.Body.String())
	require.Equal(t, "Elden Ring", searcher.lastQuery())
}

func TestServer_FindTorrent_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		err    error
		code   int
		body   string
	}{
		{"not found", "/api/torrent?name=zzz", search.ErrNotFound, http.StatusNotFound, `{"error":"torrent not found"}`},
		{"blank name", "/api/torrent?name=", search.ErrEmptyQuery, http.StatusBadRequest, `{"error":"name is required"}`},
		{
			"store failure",
			"/api/torrent?name=x",
			fmt.Errorf("search records: %w", errors.New("db gone")),
			http.StatusInternalServerError,
			`{"error":"internal server error"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := NewServer(&fakeSearcher{err: tt.err}, &fakeCatalog{}, Options{}, zap.NewNop())
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Equal(t, tt.code, rec.Code)
			require.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestServer_FindTorrent_RealSearchService(t *testing.T) {
	t.Parallel()

	// Missing query parameter reaches the service as "" and is rejected there.
	server := NewServer(search.NewService(nil), &fakeCatalog{}, Options{}, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/torrent", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GamesRoutes(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{}
	server := NewServer(&fakeSearcher{}, catalog, Options{}, zap.NewNop())

	tests := []struct {
		target string
		call   string
	}{
		{"/api/games", "list:1"},
		{"/api/games?page=3", "list:3"},
		{"/api/games/search?query=hades", "search:hades"},
		{"/api/games/3498", "details:3498"},
		{"/api/games/grand-theft-auto-v/screenshots?page=2", "screenshots:grand-theft-auto-v:2"},
		{"/api/games/3498/movies", "movies:3498:1"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		require.Equal(t, http.StatusOK, rec.Code, tt.target)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tt.call, body["call"], tt.target)
	}
}

func TestServer_GamesBadRequests(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{}
	server := NewServer(&fakeSearcher{}, catalog, Options{}, zap.NewNop())

	for _, target := range []string{
		"/api/games?page=0",
		"/api/games?page=abc",
		"/api/games/search",
		"/api/games/search?query=%20%20",
		"/api/games/1/movies?page=-1",
	} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	require.Empty(t, catalog.calls())
}

func TestServer_GamesUpstreamFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	server := NewServer(&fakeSearcher{}, &fakeCatalog{err: errors.New("401 after refresh")}, Options{}, zap.New(core))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/42", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.JSONEq(t, `{"error":"games api unavailable"}`, rec.Body.String())
	require.Equal(t, 1, logs.FilterMessage("games api call failed").Len())
}

func TestServer_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeSearcher{}, &fakeCatalog{}, Options{}, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ready := NewServer(&fakeSearcher{}, &fakeCatalog{}, Options{Ready: fakePinger{}}, zap.NewNop())
	rec = httptest.NewRecorder()
	ready.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	down := NewServer(&fakeSearcher{}, &fakeCatalog{}, Options{Ready: fakePinger{err: errors.New("connection refused")}}, zap.NewNop())
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeSearcher{}, &fakeCatalog{}, Options{}, zap.NewNop())
	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	server := NewServer(&fakeSearcher{panics: true}, &fakeCatalog{}, Options{}, zap.New(core))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/torrent?name=boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	server := NewServer(&fakeSearcher{}, &fakeCatalog{}, Options{}, zap.New(core))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	id := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].ContextMap()["request_id"])
	require.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

// --- helpers/fakes ---

type fakeSearcher struct {
	mu     sync.Mutex
	hits   []search.Hit
	err    error
	panics bool
	query  string
}

func (f *fakeSearcher) Search(_ context.Context, name string) ([]search.Hit, error) {
	if f.panics {
		panic("search exploded")
	}
	f.mu.Lock()
	f.query = name
	f.mu.Unlock()
	return f.hits, f.err
}

func (f *fakeSearcher) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// fakeCatalog echoes the call it received as {"call": "..."}.
type fakeCatalog struct {
	mu  sync.Mutex
	log []string
	err error
}

func (f *fakeCatalog) record(call string) (json.RawMessage, error) {
	f.mu.Lock()
	f.log = append(f.log, call)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out, err := json.Marshal(map[string]string{"call": call})
	if err != nil {
		return nil, fmt.Errorf("marshal fake payload: %w", err)
	}
	return out, nil
}

func (f *fakeCatalog) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeCatalog) List(_ context.Context, page int) (json.RawMessage, error) {
	return f.record(fmt.Sprintf("list:%d", page))
}

func (f *fakeCatalog) Search(_ context.Context, query string) (json.RawMessage, error) {
	return f.record("search:" + query)
}

func (f *fakeCatalog) Details(_ context.Context, id string) (json.RawMessage, error) {
	return f.record("details:" + id)
}

func (f *fakeCatalog) Screenshots(_ context.Context, id string, page int) (json.RawMessage, error) {
	return f.record(fmt.Sprintf("screenshots:%s:%d", id, page))
}

func (f *fakeCatalog) Movies(_ context.Context, id string, page int) (json.RawMessage, error) {
	return f.record(fmt.Sprintf("movies:%s:%d", id, page))
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error {
	return p.err
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
