// Package metrics exposes Prometheus instrumentation for the realtime core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what components depend on; Nop satisfies it in tests.
type Recorder interface {
	SetOnlineSessions(n int)
	RecordDispatch(event string, delivered bool)
	RecordReceipt(state string)
	RecordMessageSent(group bool)
	RecordRelay(direction string, err error)
}

type Collector struct {
	onlineSessions prometheus.Gauge
	dispatched     *prometheus.CounterVec
	receipts       *prometheus.CounterVec
	messagesSent   *prometheus.CounterVec
	relay          *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		onlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_online_sessions",
			Help: "Live sessions held by this node's registry.",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_fanout_events_total",
			Help: "Fanout deliveries by event and outcome.",
		}, []string{"event", "outcome"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_receipt_transitions_total",
			Help: "Receipt state transitions applied.",
		}, []string{"state"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages created.",
		}, []string{"kind"}),
		relay: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_relay_envelopes_total",
			Help: "Envelopes published to or consumed from the cluster relay.",
		}, []string{"direction", "outcome"}),
	}

	reg.MustRegister(
		c.onlineSessions,
		c.dispatched,
		c.receipts,
		c.messagesSent,
		c.relay,
	)
	return c
}

func (c *Collector) SetOnlineSessions(n int) {
	c.onlineSessions.Set(float64(n))
}

func (c *Collector) RecordDispatch(event string, delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	c.dispatched.WithLabelValues(event, outcome).Inc()
}

func (c *Collector) RecordReceipt(state string) {
	c.receipts.WithLabelValues(state).Inc()
}

func (c *Collector) RecordMessageSent(group bool) {
	kind := "direct"
	if group {
		kind = "group"
	}
	c.messagesSent.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordRelay(direction string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.relay.WithLabelValues(direction, outcome).Inc()
}

// Handler serves the gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type Nop struct{}

func (Nop) SetOnlineSessions(int) {}
func (Nop) RecordDispatch(string, bool) {}
func (Nop) RecordReceipt(string) {}
func (Nop) RecordMessageSent(bool) {}
func (Nop) RecordRelay(string, error) {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
