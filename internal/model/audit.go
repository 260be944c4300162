package model

import "time"

// Audit events.
const (
	EventApiCreated  = "API_CREATED"
	EventApiUpdated  = "API_UPDATED"
	EventApiDeleted  = "API_DELETED"
	EventApiStarted  = "API_STARTED"
	EventApiStopped  = "API_STOPPED"
	EventApiImported = "API_IMPORTED"

	EventPlanCreated    = "PLAN_CREATED"
	EventPlanUpdated    = "PLAN_UPDATED"
	EventPlanDeleted    = "PLAN_DELETED"
	EventPlanPublished  = "PLAN_PUBLISHED"
	EventPlanDeprecated = "PLAN_DEPRECATED"
	EventPlanClosed     = "PLAN_CLOSED"

	EventSubscriptionCreated = "SUBSCRIPTION_CREATED"
	EventSubscriptionUpdated = "SUBSCRIPTION_UPDATED"
	EventSubscriptionClosed  = "SUBSCRIPTION_CLOSED"

	EventMembershipCreated = "MEMBERSHIP_CREATED"
	EventMembershipUpdated = "MEMBERSHIP_UPDATED"
	EventMembershipDeleted = "MEMBERSHIP_DELETED"

	EventApiKeyCreated = "APIKEY_CREATED"
	EventApiKeyRevoked = "APIKEY_REVOKED"
)

// Audit property keys.
const (
	AuditPropertyPlan         = "PLAN"
	AuditPropertyApplication  = "APPLICATION"
	AuditPropertyApi          = "API"
	AuditPropertyUser         = "USER"
	AuditPropertyGroup        = "GROUP"
	AuditPropertyApiKey       = "API_KEY"
	AuditPropertySubscription = "SUBSCRIPTION"
)

// AuditEntry records a single change made through the management plane.
type AuditEntry struct {
	ID             string
	OrganizationID string
	EnvironmentID  string
	ReferenceType  ReferenceType
	ReferenceID    string
	User           string
	Event          string
	Properties     map[string]string
	Patch          string
	CreatedAt      time.Time
}

// AuditQuery filters audit entries.
type AuditQuery struct {
	ReferenceType ReferenceType
	ReferenceID   string
	Events        []string
	From          *time.Time
	To            *time.Time
	Page          int
	Size          int
}
