// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
type Recorder interface {
	// Management operations. op is the audit event name, e.g. PLAN_PUBLISHED.
	IncManagementOperation(op string)

	// Portal cache. tier is "local" or "redis".
	IncPortalCacheHit(tier string)
	IncPortalCacheMiss()

	// Domain events. status: "success", "failed", "dropped".
	IncEventPublished(status string)
	IncEventConsumed(status string)

	// Upgraders. status: "success", "failure", "skipped".
	IncUpgraderRun(name, status string)
	ObserveUpgraderDuration(name string, duration time.Duration)

	// Background jobs.
	IncSubscriptionsExpired(count int)
	IncNotificationDelivered(status string)

	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
