package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iliyamo/farmwise/internal/model"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Session is one websocket connection of an authenticated user.  Outbound
// frames go through a buffered channel drained by writePump; a full buffer
// closes the session.
type Session struct {
	ID     string
	UserID string

	conn   *websocket.Conn
	hub    *Hub
	ingest *Ingestor
	typing *rate.Limiter
	log    *zap.Logger

	mu    sync.Mutex
	state State
	send  chan []byte
}

func newSession(hub *Hub, ingest *Ingestor, log *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		hub:    hub,
		ingest: ingest,
		log:    log.With(zap.String("session", id)),
		state:  StateConnecting,
		send:   make(chan []byte, sendBuffer),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = st
	}
	s.mu.Unlock()
}

// open binds the upgraded connection, registers the session and starts its
// pumps.
func (s *Session) open(conn *websocket.Conn, userID string, typingRPS float64) {
	s.conn = conn
	s.UserID = userID
	s.log = s.log.With(zap.String("user_id", userID))
	if typingRPS > 0 {
		burst := int(typingRPS)
		if burst < 1 {
			burst = 1
		}
		s.typing = rate.NewLimiter(rate.Limit(typingRPS), burst)
	}
	s.setState(StateOpen)
	s.hub.Register(s)
	s.log.Debug("session opened")
	go s.writePump()
	go s.readPump()
}

// Deliver queues frame without blocking.  Delivering to a closed session is
// a no-op.
func (s *Session) Deliver(frame []byte) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	select {
	case s.send <- frame:
		s.mu.Unlock()
		return true
	default:
	}
	s.closeLocked()
	s.mu.Unlock()
	s.hub.metrics.SlowConsumers.Inc()
	s.log.Warn("send buffer full, closing session")
	s.hub.Unregister(s)
	return false
}

// Close moves the session to Closed and removes it from the hub.  Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	wasClosed := s.state == StateClosed
	s.closeLocked()
	s.mu.Unlock()
	if !wasClosed {
		s.hub.Unregister(s)
		s.log.Debug("session closed")
	}
}

func (s *Session) closeLocked() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	close(s.send)
}

func (s *Session) readPump() {
	defer func() {
		s.Close()
		_ = s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debug("malformed frame", zap.Error(err))
			continue
		}
		switch env.Event {
		case EventSubmitMessage:
			s.handleSubmit(env.Data)
		case EventSignalTyping:
			s.handleTyping()
		default:
			s.log.Debug("unknown event", zap.String("event", env.Event))
		}
	}
}

func (s *Session) handleSubmit(data json.RawMessage) {
	var p SubmitPayload
	if len(data) == 0 || json.Unmarshal(data, &p) != nil || (p.ThreadID != nil && len(*p.ThreadID) > MaxThreadIDLen) {
		s.Deliver(mustEncode(EventSubmitError, SubmitError{Message: failedToSend}))
		return
	}
	req := Request{
		Input: model.NewMessage{
			AuthorID:  s.UserID,
			Body:      p.Body,
			ThreadID:  p.ThreadID,
			ReplyToID: p.ReplyToID,
			ImageRef:  p.ImageRef,
		},
		Reply: s,
	}
	// Blocks while the author's queue is full, which keeps this session's
	// submissions in emission order.
	if err := s.ingest.Submit(context.Background(), req); err != nil {
		s.Deliver(mustEncode(EventSubmitError, SubmitError{Message: failedToSend}))
	}
}

// handleTyping relays the session's own user id; the payload is not
// trusted for identity.
func (s *Session) handleTyping() {
	if s.typing != nil && !s.typing.Allow() {
		return
	}
	s.hub.BroadcastExcept(mustEncode(EventTypingBroadcast, s.UserID), s)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
