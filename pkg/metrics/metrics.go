// Package metrics exposes Prometheus counters for the entitlement engine.
//
// A nil *Metrics is valid and records nothing, so components can take one
// as an optional dependency.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace   = "entitlements"
	maxLabelLen = 64
)

// Metrics holds the engine counters.
type Metrics struct {
	registry prometheus.Gatherer

	webhookRequests   *prometheus.CounterVec
	entitlementEvents *prometheus.CounterVec
	checkoutSessions  *prometheus.CounterVec
	cancellations     *prometheus.CounterVec
	deletionSteps     *prometheus.CounterVec
	inboxTasks        *prometheus.CounterVec
}

// New registers the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		registry: gatherer,
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Inbound provider webhooks by provider and result",
		}, []string{"provider", "result"}),
		entitlementEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_events_total",
			Help:      "Lifecycle events applied to entitlements by type and result",
		}, []string{"type", "result"}),
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout session attempts by result",
		}, []string{"result"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Cancellation requests by payment rail and mode",
		}, []string{"rail", "mode"}),
		deletionSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_deletion_steps_total",
			Help:      "Account deletion steps by step and result",
		}, []string{"step", "result"}),
		inboxTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_tasks_total",
			Help:      "Processed inbox tasks by task name and result",
		}, []string{"name", "result"}),
	}

	reg.MustRegister(
		m.webhookRequests,
		m.entitlementEvents,
		m.checkoutSessions,
		m.cancellations,
		m.deletionSteps,
		m.inboxTasks,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) WebhookReceived(provider, result string) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(label(provider), label(result)).Inc()
}

func (m *Metrics) EventApplied(eventType, result string) {
	if m == nil {
		return
	}
	m.entitlementEvents.WithLabelValues(label(eventType), label(result)).Inc()
}

func (m *Metrics) CheckoutCreated(result string) {
	if m == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(label(result)).Inc()
}

func (m *Metrics) Cancellation(rail, mode string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(label(rail), label(mode)).Inc()
}

func (m *Metrics) DeletionStep(step, result string) {
	if m == nil {
		return
	}
	m.deletionSteps.WithLabelValues(label(step), label(result)).Inc()
}

func (m *Metrics) InboxTask(name, result string) {
	if m == nil {
		return
	}
	m.inboxTasks.WithLabelValues(label(name), label(result)).Inc()
}

// label keeps label values bounded.
func label(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}
