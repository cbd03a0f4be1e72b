package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the realtime collectors.  Build it with a nil registerer in
// tests to keep collectors off the global registry.
type Metrics struct {
	Connections   prometheus.Gauge
	Messages      *prometheus.CounterVec
	Rejected      *prometheus.CounterVec
	SlowConsumers prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Open websocket sessions",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_messages_total",
			Help: "Ingested chat messages by outcome",
		}, []string{"result"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_handshake_rejected_total",
			Help: "Rejected websocket handshakes by reason",
		}, []string{"reason"}),
		SlowConsumers: f.NewCounter(prometheus.CounterOpts{
			Name: "ws_slow_consumers_total",
			Help: "Sessions closed because their send buffer was full",
		}),
	}
}
