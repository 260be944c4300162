package repository

import (
	"context"
	"errors"
	"time"

	"github.com/apimplane/apim/internal/model"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrApiNotFound          = errors.New("api not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrApiKeyNotFound       = errors.New("api key not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrRoleNotFound         = errors.New("role not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrGroupNotFound        = errors.New("group not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrIntegrationNotFound  = errors.New("integration not found")
	ErrAlertTriggerNotFound = errors.New("alert trigger not found")
	ErrTokenNotFound        = errors.New("token not found")
	ErrAlreadyExists        = errors.New("record already exists")
)

// ApiQuery filters APIs. Zero values are ignored.
type ApiQuery struct {
	EnvironmentID  string
	Name           string
	Visibility     model.Visibility
	LifecycleState model.ApiLifecycleState
	IDs            []string
	Page           int
	Size           int
}

// SubscriptionQuery filters subscriptions. Zero values are ignored.
type SubscriptionQuery struct {
	ApiID         string
	PlanIDs       []string
	ApplicationID string
	Statuses      []model.SubscriptionStatus
	EndingBefore  *time.Time
}

// MembershipQuery filters memberships. Zero values are ignored.
type MembershipQuery struct {
	ReferenceType model.ReferenceType
	ReferenceID   string
	MemberID      string
	MemberType    model.MemberType
	RoleID        string
}

// ApiStore persists APIs.
type ApiStore interface {
	CreateApi(ctx context.Context, api *model.Api) error
	GetApi(ctx context.Context, id string) (*model.Api, error)
	GetApiByCrossID(ctx context.Context, environmentID, crossID string) (*model.Api, error)
	ListApis(ctx context.Context, q ApiQuery) ([]*model.Api, int, error)
	UpdateApi(ctx context.Context, api *model.Api) error
	DeleteApi(ctx context.Context, id string) error
}

// PlanStore persists plans.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *model.Plan) error
	GetPlan(ctx context.Context, id string) (*model.Plan, error)
	ListPlansByApi(ctx context.Context, apiID string) ([]*model.Plan, error)
	UpdatePlan(ctx context.Context, plan *model.Plan) error
	DeletePlan(ctx context.Context, id string) error
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, q SubscriptionQuery) ([]*model.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *model.Subscription) error
}

// ApiKeyStore persists consumer API keys.
type ApiKeyStore interface {
	CreateApiKey(ctx context.Context, key *model.ApiKey) error
	ListApiKeys(ctx context.Context) ([]*model.ApiKey, error)
	ListApiKeysBySubscription(ctx context.Context, subscriptionID string) ([]*model.ApiKey, error)
	UpdateApiKey(ctx context.Context, key *model.ApiKey) error
}

// MembershipStore persists memberships.
type MembershipStore interface {
	CreateMembership(ctx context.Context, m *model.Membership) error
	FindMemberships(ctx context.Context, q MembershipQuery) ([]*model.Membership, error)
	UpdateMembership(ctx context.Context, m *model.Membership) error
	DeleteMembership(ctx context.Context, id string) error
	DeleteMembershipsByReference(ctx context.Context, refType model.ReferenceType, refID string) error
}

// RoleStore persists roles.
type RoleStore interface {
	CreateRole(ctx context.Context, role *model.Role) error
	GetRole(ctx context.Context, id string) (*model.Role, error)
	FindRole(ctx context.Context, organizationID string, scope model.RoleScope, name string) (*model.Role, error)
	ListRoles(ctx context.Context, organizationID string) ([]*model.Role, error)
}

// DirectoryStore persists users, groups, applications and integrations.
type DirectoryStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateGroup(ctx context.Context, group *model.Group) error
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	CreateApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	CreateIntegration(ctx context.Context, integration *model.Integration) error
	GetIntegration(ctx context.Context, id string) (*model.Integration, error)
}

// AlertTriggerStore persists alert triggers.
type AlertTriggerStore interface {
	CreateAlertTrigger(ctx context.Context, trigger *model.AlertTrigger) error
	ListAlertTriggers(ctx context.Context) ([]*model.AlertTrigger, error)
	UpdateAlertTrigger(ctx context.Context, trigger *model.AlertTrigger) error
}

// TokenStore persists management tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, token *model.Token) error
	GetTokenByID(ctx context.Context, id string) (*model.Token, error)
	GetTokensByPrefix(ctx context.Context, prefix string) ([]*model.Token, error)
	ListTokensByUserID(ctx context.Context, userID string) ([]*model.Token, error)
	RevokeToken(ctx context.Context, id string) error
	UpdateTokenLastUsed(ctx context.Context, id string) error
}

// Store groups every persistence contract of the management plane.
type Store interface {
	ApiStore
	PlanStore
	SubscriptionStore
	ApiKeyStore
	MembershipStore
	RoleStore
	DirectoryStore
	AlertTriggerStore
	TokenStore
	Ping(ctx context.Context) error
}
