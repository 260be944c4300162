package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncManagementOperation(op string) {}

func (n *NoopRecorder) IncPortalCacheHit(tier string) {}

func (n *NoopRecorder) IncPortalCacheMiss() {}

func (n *NoopRecorder) IncEventPublished(status string) {}

func (n *NoopRecorder) IncEventConsumed(status string) {}

func (n *NoopRecorder) IncUpgraderRun(name, status string) {}

func (n *NoopRecorder) ObserveUpgraderDuration(name string, duration time.Duration) {}

func (n *NoopRecorder) IncSubscriptionsExpired(count int) {}

func (n *NoopRecorder) IncNotificationDelivered(status string) {}

func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}
