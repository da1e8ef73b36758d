package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dossier/kgexplorer/internal/explorer"
)

const sseHeartbeat = 30 * time.Second

// ---------------------------------------------------------------------------
// SSE Types
// ---------------------------------------------------------------------------

// SSEEvent is a single server-sent event.
type SSEEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type sseClient struct {
	topic string
	ch    chan SSEEvent
}

// ---------------------------------------------------------------------------
// SSEBroadcaster
// ---------------------------------------------------------------------------

// SSEBroadcaster fans out SSE events to connected HTTP clients. Each client
// subscribes to one topic (a session id) and receives events through a
// buffered channel.
type SSEBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]sseClient
}

// NewSSEBroadcaster creates a ready-to-use broadcaster.
func NewSSEBroadcaster() *SSEBroadcaster {
	return &SSEBroadcaster{
		clients: make(map[string]sseClient),
	}
}

// Subscribe registers a client on topic and returns its event channel.
// The channel is buffered (64) so slow consumers don't block publishers.
func (b *SSEBroadcaster) Subscribe(clientID, topic string) chan SSEEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan SSEEvent, 64)
	b.clients[clientID] = sseClient{topic: topic, ch: ch}
	log.Printf("sse: client %s subscribed to %s (%d total)", clientID, topic, len(b.clients))
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *SSEBroadcaster) Unsubscribe(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[clientID]; ok {
		close(c.ch)
		delete(b.clients, clientID)
		log.Printf("sse: client %s unsubscribed (%d remaining)", clientID, len(b.clients))
	}
}

// Publish sends an event to every client on topic. If a client's channel
// is full the event is dropped for that client (non-blocking send).
func (b *SSEBroadcaster) Publish(topic string, event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, c := range b.clients {
		if c.topic != topic {
			continue
		}
		select {
		case c.ch <- event:
		default:
			log.Printf("sse: dropping event %q for slow client %s", event.Event, id)
		}
	}
}

// Broadcast sends an event to every connected client.
func (b *SSEBroadcaster) Broadcast(event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, c := range b.clients {
		select {
		case c.ch <- event:
		default:
			log.Printf("sse: dropping event %q for slow client %s", event.Event, id)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *SSEBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// TopicCount returns the number of clients subscribed to topic.
func (b *SSEBroadcaster) TopicCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, c := range b.clients {
		if c.topic == topic {
			n++
		}
	}
	return n
}

// SessionSinks returns a factory that publishes each session's canvas
// frames on the session's topic.
func (b *SSEBroadcaster) SessionSinks() explorer.SinkFactory {
	return func(sessionID string) explorer.FrameSink {
		return explorer.FrameSinkFunc(func(f explorer.Frame) {
			b.Publish(sessionID, SSEEvent{Event: string(f.Kind), Data: f})
		})
	}
}

// ---------------------------------------------------------------------------
// GET /api/sessions/{id}/events
// ---------------------------------------------------------------------------

// handleSessionEvents streams a session's canvas frames. The first client
// attaches the session's canvas; the last one to leave detaches it.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SSE_NOT_SUPPORTED",
			"streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientID := uuid.New().String()
	ch := s.sse.Subscribe(clientID, sess.ID)
	defer s.sse.Unsubscribe(clientID)

	if err := writeSSEEvent(w, flusher, SSEEvent{Event: "view", Data: sess.View()}); err != nil {
		return
	}
	sess.Attach()
	defer sess.Detach()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, flusher, evt); err != nil {
				return
			}
			if evt.Event == "closed" || evt.Event == "shutdown" {
				return
			}

		case t := <-heartbeat.C:
			if _, err := s.sessions.Get(sess.ID); err != nil {
				writeSSEEvent(w, flusher, SSEEvent{Event: "closed", Data: map[string]string{"session": sess.ID}})
				return
			}
			hb := SSEEvent{
				Event: "heartbeat",
				Data:  map[string]int64{"t": t.Unix()},
			}
			if err := writeSSEEvent(w, flusher, hb); err != nil {
				return
			}
		}
	}
}

// writeSSEEvent formats and writes a single SSE frame.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, evt SSEEvent) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, data)
	if err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
