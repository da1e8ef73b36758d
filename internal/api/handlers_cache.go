package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dossier/kgexplorer/internal/storage"
)

// requireCache writes a 503 when the server runs without a response cache.
func (s *Server) requireCache(w http.ResponseWriter) bool {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "CACHE_DISABLED",
			"response cache is disabled")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// GET /api/cache
// ---------------------------------------------------------------------------

func (s *Server) handleListCache(w http.ResponseWriter, r *http.Request) {
	if !s.requireCache(w) {
		return
	}
	store := s.cache.Store()
	entries, err := store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "CACHE_ERROR", err.Error())
		return
	}
	stats, err := store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "CACHE_ERROR", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"stats":   stats,
	})
}

// ---------------------------------------------------------------------------
// DELETE /api/cache?older_than=7d
// ---------------------------------------------------------------------------

// handleClearCache removes entries older than older_than, or every entry
// when the parameter is absent.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if !s.requireCache(w) {
		return
	}
	var age time.Duration
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := parseAge(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_AGE", err.Error())
			return
		}
		age = d
	}
	n, err := s.cache.Store().DeleteOlderThan(r.Context(), age)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "CACHE_ERROR", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]int{"deleted": n})
}

// ---------------------------------------------------------------------------
// DELETE /api/cache/{key}
// ---------------------------------------------------------------------------

func (s *Server) handleDeleteCacheEntry(w http.ResponseWriter, r *http.Request) {
	if !s.requireCache(w) {
		return
	}
	key := r.PathValue("key")
	if err := s.cache.Store().Delete(r.Context(), key); err != nil {
		if errors.Is(err, storage.ErrCacheMiss) {
			writeError(w, http.StatusNotFound, "CACHE_MISS", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "CACHE_ERROR", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]string{"deleted": key})
}

// ---------------------------------------------------------------------------
// POST /api/cache/regenerate
// ---------------------------------------------------------------------------

func (s *Server) handleRegenerateCache(w http.ResponseWriter, r *http.Request) {
	if !s.requireCache(w) {
		return
	}
	report, err := s.cache.Regenerate(r.Context(), s.opts.RegenParallel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "REGENERATE_FAILED", err.Error())
		return
	}
	writeData(w, http.StatusOK, report)
}

// parseAge converts shorthand durations ("24h", "7d") to time.Duration.
func parseAge(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid day value: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("age must be positive: %s", s)
	}
	return d, nil
}
