package model

import (
	"slices"
	"time"
)

// PlanStatus is the lifecycle status of a plan.
// STAGING -> PUBLISHED -> DEPRECATED -> CLOSED, CLOSED is terminal.
type PlanStatus string

const (
	PlanStaging    PlanStatus = "STAGING"
	PlanPublished  PlanStatus = "PUBLISHED"
	PlanDeprecated PlanStatus = "DEPRECATED"
	PlanClosed     PlanStatus = "CLOSED"
)

// IsValid returns true if the status is known.
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanStaging, PlanPublished, PlanDeprecated, PlanClosed:
		return true
	}
	return false
}

// PlanSecurity is the security type applied by a plan.
type PlanSecurity string

const (
	SecurityKeyless PlanSecurity = "KEY_LESS"
	SecurityApiKey  PlanSecurity = "API_KEY"
	SecurityOAuth2  PlanSecurity = "OAUTH2"
	SecurityJWT     PlanSecurity = "JWT"
	SecurityMTLS    PlanSecurity = "MTLS"
)

// ValidPlanSecurities lists accepted plan security types.
var ValidPlanSecurities = []PlanSecurity{SecurityKeyless, SecurityApiKey, SecurityOAuth2, SecurityJWT, SecurityMTLS}

// IsValid returns true if the security type is known.
func (s PlanSecurity) IsValid() bool {
	return slices.Contains(ValidPlanSecurities, s)
}

// PlanValidation is the subscription validation mode of a plan.
type PlanValidation string

const (
	ValidationAuto   PlanValidation = "AUTO"
	ValidationManual PlanValidation = "MANUAL"
)

// PlanMode distinguishes standard plans from push plans.
type PlanMode string

const (
	PlanModeStandard PlanMode = "STANDARD"
	PlanModePush     PlanMode = "PUSH"
)

// Plan represents an access plan attached to an API.
type Plan struct {
	ID                 string
	CrossID            string
	ApiID              string
	Name               string
	Description        string
	Security           PlanSecurity
	SecurityDefinition string
	SelectionRule      string
	Status             PlanStatus
	Validation         PlanValidation
	Mode               PlanMode
	Order              int
	Characteristics    []string
	ExcludedGroups     []string
	Tags               []string
	CommentRequired    bool
	CommentMessage     string
	GeneralConditions  string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PublishedAt        *time.Time
	ClosedAt           *time.Time
	NeedRedeployAt     *time.Time
}

// IsClosed returns true if the plan is closed.
func (p *Plan) IsClosed() bool {
	return p.Status == PlanClosed
}

// IsPublished returns true if consumers can subscribe to the plan.
func (p *Plan) IsPublished() bool {
	return p.Status == PlanPublished
}

// IsKeyless returns true if the plan requires no consumer identification.
func (p *Plan) IsKeyless() bool {
	return p.Security == SecurityKeyless
}

// IsSubscribable returns true if subscriptions can be requested on the plan.
// Push plans have no entrypoint security but still take subscriptions.
func (p *Plan) IsSubscribable() bool {
	return p.IsPublished() && (p.Mode == PlanModePush || !p.IsKeyless())
}
