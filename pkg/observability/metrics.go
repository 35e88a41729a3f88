package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bus metrics
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentapi_messages_sent_total",
			Help: "Total number of messages routed to a mailbox",
		},
		[]string{"receiver", "kind"},
	)

	messagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentapi_messages_dropped_total",
			Help: "Total number of messages dropped by the bus",
		},
		[]string{"reason"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentapi_events_published_total",
			Help: "Total number of broadcast events published",
		},
		[]string{"topic"},
	)

	subscriberFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentapi_subscriber_failures_total",
			Help: "Total number of broadcast callbacks that panicked",
		},
		[]string{"topic"},
	)

	// Agent metrics
	handlerInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentapi_handler_invocations_total",
			Help: "Total number of capability handler invocations",
		},
		[]string{"agent", "capability", "status"},
	)

	unknownCapabilityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentapi_unknown_capability_total",
			Help: "Total number of messages dropped for an unknown capability",
		},
		[]string{"agent"},
	)

	// Lease metrics
	leaseAcquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentapi_lease_acquires_total",
			Help: "Total number of lease acquire attempts",
		},
		[]string{"outcome"},
	)

	// System gauges
	activeAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentapi_active_agents",
			Help: "Number of registered live agents",
		},
	)

	mailboxBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentapi_mailbox_backlog",
			Help: "Total messages queued across all mailboxes",
		},
	)

	heldLeases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentapi_held_leases",
			Help: "Number of currently held resource leases",
		},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentapi_metrics_tick_duration_seconds",
			Help:    "Duration of the orchestrator metrics tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentapi_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentapi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	initOnce sync.Once
)

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			messagesSentTotal,
			messagesDroppedTotal,
			eventsPublishedTotal,
			subscriberFailuresTotal,
			handlerInvocationsTotal,
			unknownCapabilityTotal,
			leaseAcquiresTotal,
			activeAgents,
			mailboxBacklog,
			heldLeases,
			tickDuration,
			httpRequestsTotal,
			httpRequestDuration,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordMessageSent records a message routed to a mailbox
func RecordMessageSent(receiver, kind string) {
	messagesSentTotal.WithLabelValues(receiver, kind).Inc()
}

// RecordMessageDropped records a message the bus discarded
func RecordMessageDropped(reason string) {
	messagesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordEventPublished records a broadcast publish
func RecordEventPublished(topic string) {
	eventsPublishedTotal.WithLabelValues(topic).Inc()
}

// RecordSubscriberFailure records a broadcast callback panic
func RecordSubscriberFailure(topic string) {
	subscriberFailuresTotal.WithLabelValues(topic).Inc()
}

// RecordHandlerSuccess records a successful capability invocation
func RecordHandlerSuccess(agent, capability string) {
	handlerInvocationsTotal.WithLabelValues(agent, capability, "ok").Inc()
}

// RecordHandlerFailure records a failed capability invocation
func RecordHandlerFailure(agent, capability string) {
	handlerInvocationsTotal.WithLabelValues(agent, capability, "error").Inc()
}

// RecordUnknownCapability records a message dropped for a missing capability
func RecordUnknownCapability(agent string) {
	unknownCapabilityTotal.WithLabelValues(agent).Inc()
}

// RecordLeaseAcquire records a lease acquire attempt
func RecordLeaseAcquire(acquired bool) {
	outcome := "acquired"
	if !acquired {
		outcome = "conflict"
	}
	leaseAcquiresTotal.WithLabelValues(outcome).Inc()
}

// SetActiveAgents sets the live agent gauge
func SetActiveAgents(count int) {
	activeAgents.Set(float64(count))
}

// SetMailboxBacklog sets the queued message gauge
func SetMailboxBacklog(count int) {
	mailboxBacklog.Set(float64(count))
}

// SetHeldLeases sets the held lease gauge
func SetHeldLeases(count int) {
	heldLeases.Set(float64(count))
}

// RecordTick records the duration of one metrics tick
func RecordTick(duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
