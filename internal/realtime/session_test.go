package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSession_DeliverAfterCloseIsNoop(t *testing.T) {
	hub := NewHub(zap.NewNop(), NewMetrics(nil))
	s := newSession(hub, nil, zap.NewNop())
	hub.Register(s)

	s.Close()
	s.Close()

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, hub.Len())
	assert.False(t, s.Deliver([]byte(`{}`)))
}

func TestSession_SlowConsumerClosed(t *testing.T) {
	hub := NewHub(zap.NewNop(), NewMetrics(nil))
	s := newSession(hub, nil, zap.NewNop())
	hub.Register(s)

	for i := 0; i < sendBuffer; i++ {
		assert.True(t, s.Deliver([]byte(`{}`)))
	}
	assert.False(t, s.Deliver([]byte(`{}`)))
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, hub.Len())
}

func TestHub_BroadcastExcept(t *testing.T) {
	hub := NewHub(zap.NewNop(), NewMetrics(nil))
	a := newSession(hub, nil, zap.NewNop())
	b := newSession(hub, nil, zap.NewNop())
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastExcept([]byte(`x`), a)

	assert.Len(t, a.send, 0)
	assert.Len(t, b.send, 1)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "closed", StateClosed.String())
}
