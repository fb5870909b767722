// Package api exposes the HTTP interface for the aggregator service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/repack-aggregator/internal/metrics"
	"github.com/JakeFAU/repack-aggregator/internal/search"
	"github.com/JakeFAU/repack-aggregator/internal/storage"
)

// DefaultRequestTimeout bounds every handler unless Options overrides it.
const DefaultRequestTimeout = 60 * time.Second

const readyTimeout = 2 * time.Second

// Searcher answers torrent lookups.
type Searcher interface {
	Search(ctx context.Context, name string) ([]search.Hit, error)
}

// Catalog proxies the game metadata API.
type Catalog interface {
	List(ctx context.Context, page int) (json.RawMessage, error)
	Search(ctx context.Context, query string) (json.RawMessage, error)
	Details(ctx context.Context, id string) (json.RawMessage, error)
	Screenshots(ctx context.Context, id string, page int) (json.RawMessage, error)
	Movies(ctx context.Context, id string, page int) (json.RawMessage, error)
}

// Options tunes the server.
type Options struct {
	RequestTimeout time.Duration
	// Ready is pinged by /readyz. Nil means always ready.
	Ready storage.Pinger
}

// Server wires HTTP handlers to the search service and game catalog.
type Server struct {
	router   chi.Router
	searcher Searcher
	catalog  Catalog
	ready    storage.Pinger
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(searcher Searcher, catalog Catalog, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		searcher: searcher,
		catalog:  catalog,
		ready:    opts.Ready,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/torrent", s.findTorrent)
		r.Route("/games", func(r chi.Router) {
			r.Get("/", s.listGames)
			r.Get("/search", s.searchGames)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.gameDetails)
				r.Get("/screenshots", s.gameScreenshots)
				r.Get("/movies", s.gameMovies)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) findTorrent(w http.ResponseWriter, r *http.Request) {
	hits, err := s.searcher.Search(r.Context(), r.URL.Query().Get("name"))
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, search.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("torrent search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	pairs := make([][2]string, 0, len(hits))
	for _, h := range hits {
		pairs = append(pairs, [2]string{h.Repacker, h.Link})
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	raw, err := s.catalog.List(r.Context(), page)
	s.writeUpstream(w, "list games", raw, err)
}

func (s *Server) searchGames(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	raw, err := s.catalog.Search(r.Context(), query)
	s.writeUpstream(w, "search games", raw, err)
}

func (s *Server) gameDetails(w http.ResponseWriter, r *http.Request) {
	raw, err := s.catalog.Details(r.Context(), chi.URLParam(r, "id"))
	s.writeUpstream(w, "game details", raw, err)
}

func (s *Server) gameScreenshots(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	raw, err := s.catalog.Screenshots(r.Context(), chi.URLParam(r, "id"), page)
	s.writeUpstream(w, "game screenshots", raw, err)
}

func (s *Server) gameMovies(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	raw, err := s.catalog.Movies(r.Context(), chi.URLParam(r, "id"), page)
	s.writeUpstream(w, "game movies", raw, err)
}

func (s *Server) writeUpstream(w http.ResponseWriter, op string, raw json.RawMessage, err error) {
	if err != nil {
		s.logger.Error("games api call failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusBadGateway, "games api unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Warn("write games response failed", zap.Error(err))
	}
}

// pageParam reads ?page=, defaulting to 1. It writes a 400 and returns false
// when the value is not a positive integer.
func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return 0, false
	}
	return page, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
