package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ManagementOperations map[string]uint64
	PortalCacheHits      map[string]uint64
	PortalCacheMisses    uint64
	EventsPublished      map[string]uint64
	EventsConsumed       map[string]uint64
	UpgraderRuns         map[string]uint64 // key: name/status
	SubscriptionsExpired uint64
	Notifications        map[string]uint64
	HTTPRequests         uint64
	HTTPDurationTotalNs  int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu       sync.Mutex
	counters map[string]map[string]uint64

	portalCacheMisses    uint64
	subscriptionsExpired uint64
	httpRequests         uint64
	httpDurationTotalNs  int64
}

var _ Recorder = (*InMemoryRecorder)(nil)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{counters: make(map[string]map[string]uint64)}
}

func (m *InMemoryRecorder) inc(family, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters[family] == nil {
		m.counters[family] = make(map[string]uint64)
	}
	m.counters[family][label]++
}

func (m *InMemoryRecorder) family(name string) map[string]uint64 {
	out := make(map[string]uint64, len(m.counters[name]))
	for k, v := range m.counters[name] {
		out[k] = v
	}
	return out
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ManagementOperations: m.family("management"),
		PortalCacheHits:      m.family("portal_hit"),
		PortalCacheMisses:    atomic.LoadUint64(&m.portalCacheMisses),
		EventsPublished:      m.family("event_published"),
		EventsConsumed:       m.family("event_consumed"),
		UpgraderRuns:         m.family("upgrader"),
		SubscriptionsExpired: atomic.LoadUint64(&m.subscriptionsExpired),
		Notifications:        m.family("notification"),
		HTTPRequests:         atomic.LoadUint64(&m.httpRequests),
		HTTPDurationTotalNs:  atomic.LoadInt64(&m.httpDurationTotalNs),
	}
}

func (m *InMemoryRecorder) IncManagementOperation(op string) { m.inc("management", op) }

func (m *InMemoryRecorder) IncPortalCacheHit(tier string) { m.inc("portal_hit", tier) }

func (m *InMemoryRecorder) IncPortalCacheMiss() {
	atomic.AddUint64(&m.portalCacheMisses, 1)
}

func (m *InMemoryRecorder) IncEventPublished(status string) { m.inc("event_published", status) }

func (m *InMemoryRecorder) IncEventConsumed(status string) { m.inc("event_consumed", status) }

func (m *InMemoryRecorder) IncUpgraderRun(name, status string) { m.inc("upgrader", name+"/"+status) }

// ObserveUpgraderDuration is not retained in memory.
func (m *InMemoryRecorder) ObserveUpgraderDuration(name string, duration time.Duration) {}

func (m *InMemoryRecorder) IncSubscriptionsExpired(count int) {
	if count > 0 {
		atomic.AddUint64(&m.subscriptionsExpired, uint64(count))
	}
}

func (m *InMemoryRecorder) IncNotificationDelivered(status string) { m.inc("notification", status) }

func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
	atomic.AddInt64(&m.httpDurationTotalNs, duration.Nanoseconds())
}
