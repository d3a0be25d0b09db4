package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the supervisor's Prometheus collectors.
type Metrics struct {
	Dials             *prometheus.CounterVec
	TLSFallbacks      prometheus.Counter
	Connected         prometheus.Gauge
	Disconnects       *prometheus.CounterVec
	FramesReceived    prometheus.Counter
	DecodeErrors      prometheus.Counter
	HandshakesSent    prometheus.Counter
	MessagesForwarded *prometheus.CounterVec
}

// Disconnect reasons
const (
	reasonReadError  = "read_error"
	reasonSendError  = "send_error"
	reasonSuperseded = "superseded"
	reasonShutdown   = "shutdown"
)

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Dials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aptracker_connection_dials_total",
				Help: "Dial attempts by URL scheme and result",
			},
			[]string{"scheme", "result"},
		),
		TLSFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "aptracker_connection_tls_fallbacks_total",
			Help: "Secure dials that failed TLS negotiation and were retried without TLS",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aptracker_connection_connected",
			Help: "1 while the supervisor holds a live transport",
		}),
		Disconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aptracker_connection_disconnects_total",
				Help: "Transports discarded, by reason",
			},
			[]string{"reason"},
		),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "aptracker_connection_frames_received_total",
			Help: "Text frames read from the server",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "aptracker_connection_decode_errors_total",
			Help: "Server batches dropped because they failed to decode",
		}),
		HandshakesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "aptracker_connection_handshakes_sent_total",
			Help: "Connect messages sent in reply to RoomInfo",
		}),
		MessagesForwarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aptracker_connection_messages_forwarded_total",
				Help: "Server messages forwarded to the consumer, by command",
			},
			[]string{"cmd"},
		),
	}
}
