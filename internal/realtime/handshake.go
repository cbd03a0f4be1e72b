package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/utils"
)

// Handshake rejection reasons.
const (
	ReasonMissing  = "missing credentials"
	ReasonExpired  = "expired"
	ReasonInvalid  = "invalid"
	ReasonMismatch = "identity mismatch"
)

// TokenVerifier decodes an access token.  It returns utils.ErrTokenExpired
// for expired tokens and any other error for bad ones.
type TokenVerifier func(raw string) (utils.Claims, error)

// Handler authenticates the upgrade request and turns it into a Session.
// Rejected handshakes get a 401 before the upgrade and never reach the hub.
type Handler struct {
	hub       *Hub
	ingest    *Ingestor
	verify    TokenVerifier
	log       *zap.Logger
	typingRPS float64
	upgrader  websocket.Upgrader
}

func NewHandler(hub *Hub, ingest *Ingestor, verify TokenVerifier, typingRPS float64, allowedOrigin string, log *zap.Logger) *Handler {
	return &Handler{
		hub:       hub,
		ingest:    ingest,
		verify:    verify,
		log:       log,
		typingRPS: typingRPS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := newSession(h.hub, h.ingest, h.log)
	s.setState(StateAuthenticating)

	userID, reason := h.authenticate(r)
	if reason != "" {
		s.setState(StateClosed)
		h.hub.metrics.Rejected.WithLabelValues(reason).Inc()
		h.log.Info("websocket handshake rejected", zap.String("reason", reason), zap.String("remote", r.RemoteAddr))
		writeRejection(w, reason)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.setState(StateClosed)
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s.open(conn, userID, h.typingRPS)
}

// authenticate returns the verified user id, or a rejection reason.
func (h *Handler) authenticate(r *http.Request) (string, string) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	token := strings.TrimSpace(q.Get("token"))
	if token == "" {
		token = utils.BearerToken(r.Header.Get("Authorization"))
	}
	if userID == "" || token == "" {
		return "", ReasonMissing
	}
	claims, err := h.verify(token)
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return "", ReasonExpired
	case err != nil:
		return "", ReasonInvalid
	case claims.UserID != userID:
		return "", ReasonMismatch
	}
	return userID, ""
}

func writeRejection(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"statusCode": http.StatusUnauthorized,
		"data":       nil,
		"message":    "Authentication error: " + reason,
		"success":    false,
	})
}

// originChecker allows any origin when allowed is empty or "*".
func originChecker(allowed string) func(*http.Request) bool {
	if allowed == "" || allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		o := r.Header.Get("Origin")
		return o == "" || strings.EqualFold(o, allowed)
	}
}
