// Package api exposes explorer sessions over HTTP with a JSON API and a
// server-sent event stream per session.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dossier/kgexplorer/internal/explorer"
	"github.com/dossier/kgexplorer/internal/source"
)

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Options tunes a Server. Zero values pick the defaults.
type Options struct {
	// RateLimit and Burst bound session mutations per second, server-wide.
	RateLimit float64
	Burst     int
	// Origins are allowed for CORS in addition to any localhost origin.
	Origins []string
	// RegenParallel bounds concurrent fetches when regenerating the cache.
	RegenParallel int
}

// Server is the HTTP API layer for kgexplorer.
type Server struct {
	sessions *explorer.Manager
	source   source.Source
	cache    *source.CachedSource
	sse      *SSEBroadcaster
	mux      *http.ServeMux
	server   *http.Server
	opts     Options

	mutationLimiter *rate.Limiter
}

// NewServer creates a Server over the session manager and dataset source.
// When src is a *source.CachedSource the cache endpoints are enabled.
func NewServer(sessions *explorer.Manager, src source.Source, sse *SSEBroadcaster, opts Options) *Server {
	if sse == nil {
		sse = NewSSEBroadcaster()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 50
	}
	if opts.Burst <= 0 {
		opts.Burst = 100
	}
	if opts.RegenParallel <= 0 {
		opts.RegenParallel = 4
	}
	s := &Server{
		sessions: sessions,
		source:   src,
		sse:      sse,
		mux:      http.NewServeMux(),
		opts:     opts,
	}
	if cached, ok := src.(*source.CachedSource); ok {
		s.cache = cached
	}

	// Per-server limiter (not per-IP); sufficient for single-instance
	// deployments.
	s.mutationLimiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)
	return s
}

// RegisterRoutes wires up every API endpoint.
func (s *Server) RegisterRoutes() {
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return s.withRateLimit(s.mutationLimiter, h)
	}

	// -- Metadata ---------------------------------------------------------
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/metapaths", s.handleMetapaths)

	// -- Sessions ---------------------------------------------------------
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", limited(s.handleCreateSession))
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/refresh", limited(s.handleRefreshSession))

	// -- Filtering --------------------------------------------------------
	s.mux.HandleFunc("PUT /api/sessions/{id}/categories/{category}", limited(s.handleToggleCategory))
	s.mux.HandleFunc("PUT /api/sessions/{id}/categories/{category}/selection", limited(s.handleSetSelection))
	s.mux.HandleFunc("POST /api/sessions/{id}/nodes/{node}/toggle", limited(s.handleToggleNode))
	s.mux.HandleFunc("GET /api/sessions/{id}/nodes/{node}/neighbours", s.handleNeighbours)

	// -- Layout -----------------------------------------------------------
	s.mux.HandleFunc("POST /api/sessions/{id}/layout/next", limited(s.handleNextLayout))
	s.mux.HandleFunc("PUT /api/sessions/{id}/layout", limited(s.handleSelectLayout))

	// -- Selection --------------------------------------------------------
	s.mux.HandleFunc("POST /api/sessions/{id}/tap", limited(s.handleTap))
	s.mux.HandleFunc("POST /api/sessions/{id}/inspector/close", limited(s.handleCloseInspector))
	s.mux.HandleFunc("POST /api/sessions/{id}/inspector/open", limited(s.handleOpenInspector))
	s.mux.HandleFunc("POST /api/sessions/{id}/search", limited(s.handleSearch))
	s.mux.HandleFunc("GET /api/sessions/{id}/options", s.handleSearchOptions)

	// -- SSE event stream -------------------------------------------------
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)

	// -- Cache ------------------------------------------------------------
	s.mux.HandleFunc("GET /api/cache", s.handleListCache)
	s.mux.HandleFunc("DELETE /api/cache", s.handleClearCache)
	s.mux.HandleFunc("DELETE /api/cache/{key}", s.handleDeleteCacheEntry)
	s.mux.HandleFunc("POST /api/cache/regenerate", limited(s.handleRegenerateCache))

	// -- Static frontend serving ------------------------------------------
	s.serveFrontend()
}

// serveFrontend registers a static file handler for a built frontend. It
// looks for "frontend/dist" relative to the working directory or the
// executable. If not found, static serving is skipped.
func (s *Server) serveFrontend() {
	candidates := []string{"frontend/dist"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "frontend", "dist"))
	}

	var distDir string
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			distDir = c
			break
		}
	}
	if distDir == "" {
		slog.Debug("frontend dist not found, SPA not served")
		return
	}

	absDir, _ := filepath.Abs(distDir)
	slog.Info("serving frontend", "dir", absDir)

	distFS := os.DirFS(distDir)
	fileServer := http.FileServerFS(distFS)

	// Serve the file if it exists, else index.html for client-side routing.
	s.mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Stat(distFS, path); err == nil && !f.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

// Handler returns the fully-wrapped http.Handler (middleware chain + mux).
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoveryMiddleware(h)
	h = loggingMiddleware(h)
	h = corsMiddleware(s.opts.Origins, h)
	return h
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams stay open.
		IdleTimeout: 60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"service":     "kgexplorer",
		"source":      s.source.Name(),
		"sessions":    s.sessions.Len(),
		"sse_clients": s.sse.ClientCount(),
	})
}

func (s *Server) handleMetapaths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"metapaths": source.Metapaths(),
			"default":   source.DefaultMetapath,
		},
	})
}

// ---------------------------------------------------------------------------
// JSON response helpers
// ---------------------------------------------------------------------------

// writeJSON writes an arbitrary value as JSON with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": v})
}

// writeError writes a standardised JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeBody reads a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY",
			fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware allows any localhost origin plus the configured ones.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "http://localhost:5173"
		}

		if strings.HasPrefix(origin, "http://localhost:") || slices.Contains(origins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the status code written by downstream handlers.
// It also implements http.Flusher so SSE streaming works through the
// logging middleware.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher by delegating to the underlying writer.
func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs method, path, duration and status code.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withRateLimit wraps a handler with a token-bucket rate limiter.
// Returns 429 when the limiter is exhausted.
func (s *Server) withRateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			slog.Warn("rate limit exceeded",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			return
		}
		next(w, r)
	}
}
