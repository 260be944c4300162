package model

import (
	"slices"
	"time"
)

// SubscriptionStatus is the processing status of a subscription.
type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "PENDING"
	SubscriptionAccepted SubscriptionStatus = "ACCEPTED"
	SubscriptionPaused   SubscriptionStatus = "PAUSED"
	SubscriptionRejected SubscriptionStatus = "REJECTED"
	SubscriptionClosed   SubscriptionStatus = "CLOSED"
)

// ActiveSubscriptionStatuses are the statuses that still grant or may grant access.
var ActiveSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionPending,
	SubscriptionAccepted,
	SubscriptionPaused,
}

// IsActive returns true if the status counts as an active subscription.
func (s SubscriptionStatus) IsActive() bool {
	return slices.Contains(ActiveSubscriptionStatuses, s)
}

// Subscription binds an application to a plan of an API.
type Subscription struct {
	ID             string
	ApiID          string
	PlanID         string
	ApplicationID  string
	SubscribedBy   string
	Status         SubscriptionStatus
	RequestMessage string
	Reason         string
	ProcessedBy    string
	StartingAt     *time.Time
	EndingAt       *time.Time
	ProcessedAt    *time.Time
	PausedAt       *time.Time
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired returns true if the subscription has an ending date in the past.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.EndingAt != nil && !s.EndingAt.After(now)
}

// ApiKey is a consumer key granting access through one or more subscriptions.
type ApiKey struct {
	ID            string
	Key           string
	ApplicationID string
	// Subscription is the single-subscription field of older records,
	// kept so the upgrader can move it into Subscriptions.
	Subscription  string
	Subscriptions []string
	ExpireAt      *time.Time
	Revoked       bool
	RevokedAt     *time.Time
	Paused        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasSubscription checks whether the key is bound to the subscription.
func (k *ApiKey) HasSubscription(subscriptionID string) bool {
	return slices.Contains(k.Subscriptions, subscriptionID) || k.Subscription == subscriptionID
}
