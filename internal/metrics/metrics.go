// Package metrics exposes document store counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the server's collectors.
type Metrics struct {
	registry *prometheus.Registry

	DocumentWrites *prometheus.CounterVec
	AuthAttempts   *prometheus.CounterVec
	Subscribers    *prometheus.GaugeVec
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocumentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophspend",
			Name:      "document_writes_total",
			Help:      "Document mutations by collection and operation.",
		}, []string{"collection", "op"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophspend",
			Name:      "auth_attempts_total",
			Help:      "Register and login attempts by outcome.",
		}, []string{"action", "result"}),
		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gophspend",
			Name:      "subscribers",
			Help:      "Open live subscriptions by collection.",
		}, []string{"collection"}),
	}
	m.registry.MustRegister(
		m.DocumentWrites,
		m.AuthAttempts,
		m.Subscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DocumentWrite counts one mutation. Safe on a nil receiver.
func (m *Metrics) DocumentWrite(collection, op string) {
	if m == nil {
		return
	}
	m.DocumentWrites.WithLabelValues(collection, op).Inc()
}

// AuthAttempt counts one register or login. Safe on a nil receiver.
func (m *Metrics) AuthAttempt(action string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.AuthAttempts.WithLabelValues(action, result).Inc()
}

// SubscriberDelta adjusts the open subscription gauge. Safe on a nil
// receiver.
func (m *Metrics) SubscriberDelta(collection string, delta float64) {
	if m == nil {
		return
	}
	m.Subscribers.WithLabelValues(collection).Add(delta)
}
