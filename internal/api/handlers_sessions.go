package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dossier/kgexplorer/internal/explorer"
	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/layout"
	"github.com/dossier/kgexplorer/internal/source"
)

// session resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*explorer.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	return sess, true
}

// writeSessionError maps explorer and layout errors to HTTP responses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, explorer.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
	case errors.Is(err, explorer.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, "UNKNOWN_CATEGORY", err.Error())
	case errors.Is(err, explorer.ErrUnknownNode):
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", err.Error())
	case errors.Is(err, explorer.ErrNotRendered):
		writeError(w, http.StatusConflict, "NOT_RENDERED", err.Error())
	case errors.Is(err, layout.ErrUnknownLayout):
		writeError(w, http.StatusBadRequest, "UNKNOWN_LAYOUT", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

// writeFetchError maps source errors. Anything but a missing gene is an
// upstream failure the client renders as an empty state.
func writeFetchError(w http.ResponseWriter, err error) {
	if errors.Is(err, source.ErrGeneNotFound) {
		writeError(w, http.StatusNotFound, "GENE_NOT_FOUND", err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, "FETCH_FAILED", err.Error())
}

// pathCategory parses {category}. Unrecognized names pass through so the
// filter reports them as unknown.
func pathCategory(r *http.Request) graph.Category {
	raw := r.PathValue("category")
	if c, ok := graph.ParseCategory(raw); ok {
		return c
	}
	return graph.Category(raw)
}

// ---------------------------------------------------------------------------
// GET /api/sessions
// ---------------------------------------------------------------------------

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]interface{}{
		"sessions": s.sessions.List(),
	})
}

// ---------------------------------------------------------------------------
// POST /api/sessions
// ---------------------------------------------------------------------------

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req source.Query
	if !decodeBody(w, r, &req) {
		return
	}
	q, err := req.Normalize()
	if err != nil {
		if errors.Is(err, source.ErrUnknownMetapath) {
			writeError(w, http.StatusBadRequest, "UNKNOWN_METAPATH", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	ds, err := s.source.Fetch(r.Context(), q)
	if err != nil {
		slog.Warn("fetch failed", "query", q.String(), "source", s.source.Name(), "error", err)
		writeFetchError(w, err)
		return
	}

	sess := s.sessions.Create(q, ds)
	status := http.StatusCreated
	if ds.Empty() {
		status = http.StatusOK
	}
	writeData(w, status, sess.View())
}

// ---------------------------------------------------------------------------
// GET / DELETE /api/sessions/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(id); err != nil {
		writeSessionError(w, err)
		return
	}
	s.sse.Publish(id, SSEEvent{Event: "closed", Data: map[string]string{"session": id}})
	writeData(w, http.StatusOK, map[string]string{"deleted": id})
}

// ---------------------------------------------------------------------------
// POST /api/sessions/{id}/refresh
// ---------------------------------------------------------------------------

// handleRefreshSession refetches the session's query, bypassing the cache,
// and reloads the session with the result.
func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	q := sess.Query()

	var (
		ds  *graph.Dataset
		err error
	)
	if s.cache != nil {
		ds, err = s.cache.FetchFresh(r.Context(), q)
	} else {
		ds, err = s.source.Fetch(r.Context(), q)
	}
	if err != nil {
		slog.Warn("refresh failed", "session", sess.ID, "query", q.String(), "error", err)
		writeFetchError(w, err)
		return
	}
	sess.Load(q, ds)
	writeData(w, http.StatusOK, sess.View())
}

// ---------------------------------------------------------------------------
// Filtering
// ---------------------------------------------------------------------------

func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Checked bool `json:"checked"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.ToggleCategory(pathCategory(r), req.Checked); err != nil {
		writeSessionError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess.View())
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.SetCategorySelection(pathCategory(r), req.IDs); err != nil {
		writeSessionError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess.View())
}

func (s *Server) handleToggleNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.ToggleNode(r.PathValue("node")); err != nil {
		writeSessionError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess.View())
}

func (s *Server) handleNeighbours(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	nb, err := sess.Neighbourhood(r.PathValue("node"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeData(w, http.StatusOK, nb)
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

func (s *Server) handleNextLayout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	cfg := sess.AdvanceLayout()
	writeData(w, http.StatusOK, map[string]interface{}{"layout": cfg})
}

func (s *Server) handleSelectLayout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	cfg, err := sess.SelectLayout(req.Name)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"layout": cfg})
}

// ---------------------------------------------------------------------------
// Selection
// ---------------------------------------------------------------------------

type tapRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req tapRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var err error
	switch req.Kind {
	case string(graph.KindNode):
		err = sess.TapNode(req.ID)
	case string(graph.KindEdge):
		err = sess.TapEdge(req.ID)
	case "background":
		sess.TapBackground()
	default:
		writeError(w, http.StatusBadRequest, "INVALID_TAP",
			"kind must be one of: node, edge, background")
		return
	}
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess.View().Inspector)
}

func (s *Server) handleCloseInspector(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.CloseInspector()
	writeData(w, http.StatusOK, sess.View().Inspector)
}

func (s *Server) handleOpenInspector(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if !sess.ReopenInspector() {
		writeError(w, http.StatusConflict, "NO_SELECTION", "nothing has been selected yet")
		return
	}
	writeData(w, http.StatusOK, sess.View().Inspector)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		NodeID string `json:"node_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.SearchNode(req.NodeID); err != nil {
		writeSessionError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"highlighted": req.NodeID})
}

func (s *Server) handleSearchOptions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"options": sess.SearchOptions(),
	})
}
