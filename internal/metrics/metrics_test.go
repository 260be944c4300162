package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	p := NewPrometheus(registry)

	p.IncManagementOperation("PLAN_PUBLISHED")
	p.IncManagementOperation("PLAN_PUBLISHED")
	p.IncPortalCacheHit("local")
	p.IncPortalCacheMiss()
	p.IncSubscriptionsExpired(3)
	p.IncSubscriptionsExpired(0)
	p.IncUpgraderRun("DefaultRolesUpgrader", "success")

	if got := testutil.ToFloat64(p.managementOps.WithLabelValues("PLAN_PUBLISHED")); got != 2 {
		t.Errorf("management ops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.portalCacheHits.WithLabelValues("local")); got != 1 {
		t.Errorf("portal hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.subscriptionExpired); got != 3 {
		t.Errorf("expired = %v, want 3", got)
	}
	if got := testutil.ToFloat64(p.upgraderRuns.WithLabelValues("DefaultRolesUpgrader", "success")); got != 1 {
		t.Errorf("upgrader runs = %v, want 1", got)
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry())
	p.ObserveHTTPRequest(http.MethodGet, "/portal/environments/{envId}/apis", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `apim_http_requests_total{method="GET",route="/portal/environments/{envId}/apis",status="200"} 1`) {
		t.Errorf("exposition missing request counter:\n%s", body)
	}
}

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	m := NewInMemory()
	m.IncManagementOperation("API_CREATED")
	m.IncEventPublished("success")
	m.IncEventPublished("dropped")
	m.IncPortalCacheMiss()
	m.IncUpgraderRun("PlanOrderUpgrader", "failure")
	m.ObserveHTTPRequest(http.MethodGet, "/", 200, time.Second)

	snap := m.Snapshot()
	if snap.ManagementOperations["API_CREATED"] != 1 {
		t.Errorf("API_CREATED = %d", snap.ManagementOperations["API_CREATED"])
	}
	if snap.EventsPublished["dropped"] != 1 || snap.EventsPublished["success"] != 1 {
		t.Errorf("events published = %v", snap.EventsPublished)
	}
	if snap.PortalCacheMisses != 1 {
		t.Errorf("misses = %d", snap.PortalCacheMisses)
	}
	if snap.UpgraderRuns["PlanOrderUpgrader/failure"] != 1 {
		t.Errorf("upgrader runs = %v", snap.UpgraderRuns)
	}
	if snap.HTTPRequests != 1 || snap.HTTPDurationTotalNs != int64(time.Second) {
		t.Errorf("http = %d / %d", snap.HTTPRequests, snap.HTTPDurationTotalNs)
	}

	snap.ManagementOperations["API_CREATED"] = 99
	if m.Snapshot().ManagementOperations["API_CREATED"] != 1 {
		t.Error("snapshot maps must be copies")
	}
}
