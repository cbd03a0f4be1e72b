// Package realtime is the websocket messaging core: the session registry,
// the per-connection pumps, the authenticated handshake and the ordered
// message ingestion pipeline.
package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Deliverer accepts an encoded frame for one recipient.  It never blocks
// and reports false when the frame was not queued.
type Deliverer interface {
	Deliver(frame []byte) bool
}

// Broadcaster fans a frame out to every open session.
type Broadcaster interface {
	Broadcast(frame []byte)
}

// Hub is the registry of open sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	log      *zap.Logger
	metrics  *Metrics
}

func NewHub(log *zap.Logger, m *Metrics) *Hub {
	return &Hub{sessions: make(map[*Session]struct{}), log: log, metrics: m}
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.metrics.Connections.Inc()
}

// Unregister removes s; removing an unknown session is a no-op.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if ok {
		h.metrics.Connections.Dec()
	}
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) Broadcast(frame []byte) { h.BroadcastExcept(frame, nil) }

// BroadcastExcept delivers frame to every session but skip.
func (h *Hub) BroadcastExcept(frame []byte, skip *Session) {
	for _, s := range h.snapshot() {
		if s != skip {
			s.Deliver(frame)
		}
	}
}

// CloseAll closes every session; used at shutdown.
func (h *Hub) CloseAll() {
	for _, s := range h.snapshot() {
		s.Close()
	}
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}
