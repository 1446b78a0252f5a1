// Package metrics collects and exposes Prometheus metrics for collaboration sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the session registry and gateways.
type Recorder interface {
	SessionStarted()
	SessionStopped(reason string)
	ConnectionOpened()
	ConnectionClosed()
	MessageReceived(msgType string)
	ProtocolError(reason string)
	MessageThrottled()
	DeliveryAttempted()
	DeliveryFailed(reason string)
	FileChangeApplied(source string)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	activeSessions  prometheus.Gauge
	sessionsStopped *prometheus.CounterVec
	openConnections prometheus.Gauge
	messages        *prometheus.CounterVec
	protocolErrors  *prometheus.CounterVec
	throttled       prometheus.Counter
	deliveries      prometheus.Counter
	deliveryFails   *prometheus.CounterVec
	fileChanges     *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livesync_active_sessions",
			Help: "Number of sessions currently registered.",
		}),
		sessionsStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_sessions_stopped_total",
			Help: "Sessions torn down, by reason.",
		}, []string{"reason"}),
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livesync_open_connections",
			Help: "Open gateway connections across all sessions.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_messages_received_total",
			Help: "Inbound protocol messages, by type.",
		}, []string{"type"}),
		protocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_protocol_errors_total",
			Help: "Inbound messages rejected as malformed, by reason.",
		}, []string{"reason"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livesync_messages_throttled_total",
			Help: "Inbound messages dropped by the per-connection rate guard.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livesync_delivery_attempts_total",
			Help: "Outbound delivery attempts to open connections.",
		}),
		deliveryFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_delivery_failures_total",
			Help: "Outbound deliveries that failed, by reason.",
		}, []string{"reason"}),
		fileChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_file_changes_total",
			Help: "Applied file changes, by source.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		c.activeSessions,
		c.sessionsStopped,
		c.openConnections,
		c.messages,
		c.protocolErrors,
		c.throttled,
		c.deliveries,
		c.deliveryFails,
		c.fileChanges,
	)

	return c
}

// SessionStarted increments the active session gauge.
func (c *Collector) SessionStarted() {
	c.activeSessions.Inc()
}

// SessionStopped decrements the active session gauge and counts the reason.
func (c *Collector) SessionStopped(reason string) {
	c.activeSessions.Dec()
	c.sessionsStopped.WithLabelValues(reason).Inc()
}

// ConnectionOpened increments the open connection gauge.
func (c *Collector) ConnectionOpened() {
	c.openConnections.Inc()
}

// ConnectionClosed decrements the open connection gauge.
func (c *Collector) ConnectionClosed() {
	c.openConnections.Dec()
}

// MessageReceived counts an inbound message.
func (c *Collector) MessageReceived(msgType string) {
	c.messages.WithLabelValues(msgType).Inc()
}

// ProtocolError counts a rejected inbound message.
func (c *Collector) ProtocolError(reason string) {
	c.protocolErrors.WithLabelValues(reason).Inc()
}

// MessageThrottled counts a message dropped by the rate guard.
func (c *Collector) MessageThrottled() {
	c.throttled.Inc()
}

// DeliveryAttempted counts one outbound delivery attempt.
func (c *Collector) DeliveryAttempted() {
	c.deliveries.Inc()
}

// DeliveryFailed counts a failed outbound delivery.
func (c *Collector) DeliveryFailed(reason string) {
	c.deliveryFails.WithLabelValues(reason).Inc()
}

// FileChangeApplied counts an applied file change.
func (c *Collector) FileChangeApplied(source string) {
	c.fileChanges.WithLabelValues(source).Inc()
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) SessionStarted()          {}
func (Nop) SessionStopped(string)    {}
func (Nop) ConnectionOpened()        {}
func (Nop) ConnectionClosed()        {}
func (Nop) MessageReceived(string)   {}
func (Nop) ProtocolError(string)     {}
func (Nop) MessageThrottled()        {}
func (Nop) DeliveryAttempted()       {}
func (Nop) DeliveryFailed(string)    {}
func (Nop) FileChangeApplied(string) {}

// Handler returns an HTTP handler for Prometheus scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
