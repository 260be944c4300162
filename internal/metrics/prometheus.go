package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "apim"

// PrometheusRecorder exports Recorder events as Prometheus collectors.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	managementOps       *prometheus.CounterVec
	portalCacheHits     *prometheus.CounterVec
	portalCacheMisses   prometheus.Counter
	eventsPublished     *prometheus.CounterVec
	eventsConsumed      *prometheus.CounterVec
	upgraderRuns        *prometheus.CounterVec
	upgraderDuration    *prometheus.HistogramVec
	subscriptionExpired prometheus.Counter
	notifications       *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheus creates a recorder registered on registry. A nil registry
// gets a fresh one with the Go and process collectors.
func NewPrometheus(registry *prometheus.Registry) *PrometheusRecorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	p := &PrometheusRecorder{
		registry: registry,
		managementOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "management_operations_total",
			Help:      "Management operations by audit event.",
		}, []string{"event"}),
		portalCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "portal_cache_hits_total",
			Help:      "Portal representation cache hits by tier.",
		}, []string{"tier"}),
		portalCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "portal_cache_misses_total",
			Help:      "Portal representation cache misses.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published to Kafka.",
		}, []string{"status"}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Domain events consumed from Kafka.",
		}, []string{"status"}),
		upgraderRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrader_runs_total",
			Help:      "Upgrader executions by outcome.",
		}, []string{"upgrader", "status"}),
		upgraderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upgrader_duration_seconds",
			Help:      "Upgrader execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"upgrader"}),
		subscriptionExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_expired_total",
			Help:      "Subscriptions closed by the expiry job.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Webhook notification deliveries.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		p.managementOps,
		p.portalCacheHits,
		p.portalCacheMisses,
		p.eventsPublished,
		p.eventsConsumed,
		p.upgraderRuns,
		p.upgraderDuration,
		p.subscriptionExpired,
		p.notifications,
		p.httpRequests,
		p.httpDuration,
	)

	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) IncManagementOperation(op string) {
	p.managementOps.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) IncPortalCacheHit(tier string) {
	p.portalCacheHits.WithLabelValues(tier).Inc()
}

func (p *PrometheusRecorder) IncPortalCacheMiss() {
	p.portalCacheMisses.Inc()
}

func (p *PrometheusRecorder) IncEventPublished(status string) {
	p.eventsPublished.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncEventConsumed(status string) {
	p.eventsConsumed.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncUpgraderRun(name, status string) {
	p.upgraderRuns.WithLabelValues(name, status).Inc()
}

func (p *PrometheusRecorder) ObserveUpgraderDuration(name string, duration time.Duration) {
	p.upgraderDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncSubscriptionsExpired(count int) {
	if count > 0 {
		p.subscriptionExpired.Add(float64(count))
	}
}

func (p *PrometheusRecorder) IncNotificationDelivered(status string) {
	p.notifications.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
