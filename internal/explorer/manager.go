package explorer

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/layout"
	"github.com/dossier/kgexplorer/internal/source"
)

// SinkFactory returns the frame sink for a new session.
type SinkFactory func(sessionID string) FrameSink

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// IdleTTL evicts sessions unused for longer. Zero disables eviction.
	IdleTTL time.Duration
	// SweepInterval is how often eviction runs. Defaults to IdleTTL/4.
	SweepInterval time.Duration
	// Sinks builds each session's frame sink. Nil discards frames.
	Sinks SinkFactory
	// Layouts overrides the cycling layout list.
	Layouts []layout.Config
	// MaxSessions caps live sessions; the least recently used is evicted to
	// make room. Zero means unlimited.
	MaxSessions int
}

// Manager owns the live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     ManagerOptions

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a manager and, when IdleTTL is set, starts the idle
// sweeper.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
		stop:     make(chan struct{}),
	}
	if opts.IdleTTL > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = opts.IdleTTL / 4
		}
		m.wg.Add(1)
		go m.evictIdleSessions(interval)
	}
	return m
}

// Create starts a session over ds.
func (m *Manager) Create(q source.Query, ds *graph.Dataset) *Session {
	id := uuid.New().String()
	var sink FrameSink
	if m.opts.Sinks != nil {
		sink = m.opts.Sinks(id)
	}
	s := newSession(id, q, ds, sink, m.opts.Layouts)

	m.mu.Lock()
	var evicted *Session
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		evicted = m.oldestLocked()
		if evicted != nil {
			delete(m.sessions, evicted.ID)
		}
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if evicted != nil {
		evicted.Close()
		slog.Info("session evicted to make room", "session", evicted.ID)
	}
	sum := s.Summarize()
	slog.Info("session created",
		"session", id,
		"query", q.String(),
		"nodes", sum.Nodes,
		"edges", sum.Edges,
	)
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and removes the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	slog.Info("session deleted", "session", id)
	return nil
}

// List summarizes live sessions, most recently active first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summarize())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle removes sessions without viewers that have been idle since
// before cutoff, and returns how many went.
func (m *Manager) EvictIdle(cutoff time.Time) int {
	m.mu.Lock()
	var victims []*Session
	for id, s := range m.sessions {
		if s.Viewers() == 0 && s.LastActive().Before(cutoff) {
			victims = append(victims, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range victims {
		s.Close()
	}
	return len(victims)
}

// Close stops the sweeper and closes every session.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()

		m.mu.Lock()
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range sessions {
			s.Close()
		}
		slog.Info("session manager closed", "sessions", len(sessions))
	})
}

// evictIdleSessions runs EvictIdle every interval until Close.
func (m *Manager) evictIdleSessions(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-m.opts.IdleTTL)
			if evicted := m.EvictIdle(cutoff); evicted > 0 {
				slog.Debug("session eviction",
					"evicted", evicted,
					"remaining", m.Len(),
				)
			}
		}
	}
}

// oldestLocked returns the least recently active session. Caller MUST hold
// m.mu.
func (m *Manager) oldestLocked() *Session {
	var oldest *Session
	var oldestAt time.Time
	for _, s := range m.sessions {
		at := s.LastActive()
		if oldest == nil || at.Before(oldestAt) {
			oldest, oldestAt = s, at
		}
	}
	return oldest
}
