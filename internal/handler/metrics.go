package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/apimplane/apim/internal/metrics"
)

// MetricsHandler exposes metrics in Prometheus exposition format. A
// Prometheus registry handler is served when set; otherwise the in-memory
// snapshot is rendered.
type MetricsHandler struct {
	exporter    http.Handler
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler. Either argument may be nil.
func NewMetricsHandler(exporter http.Handler, snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{exporter: exporter, snapshotter: snapshotter}
}

// Metrics handles GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.exporter != nil {
		h.exporter.ServeHTTP(w, r)
		return
	}
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "apim_management_operations_total", "event", snap.ManagementOperations)
	writeLabeled(w, "apim_portal_cache_hits_total", "tier", snap.PortalCacheHits)
	writeMetric(w, "apim_portal_cache_misses_total %d\n", snap.PortalCacheMisses)
	writeLabeled(w, "apim_events_published_total", "status", snap.EventsPublished)
	writeLabeled(w, "apim_events_consumed_total", "status", snap.EventsConsumed)
	writeLabeled(w, "apim_upgrader_runs_total", "upgrader_status", snap.UpgraderRuns)
	writeMetric(w, "apim_subscriptions_expired_total %d\n", snap.SubscriptionsExpired)
	writeLabeled(w, "apim_notifications_total", "status", snap.Notifications)
	writeMetric(w, "apim_http_request_duration_seconds_count %d\n", snap.HTTPRequests)
	writeMetric(w, "apim_http_request_duration_seconds_sum %.6f\n", float64(snap.HTTPDurationTotalNs)/1e9)
}

// writeLabeled writes one sample per label value, sorted for stable output.
func writeLabeled(w http.ResponseWriter, name, label string, values map[string]uint64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
