// Package service provides business logic for the management plane.
package service

import (
	"errors"
	"fmt"

	"github.com/apimplane/apim/internal/model"
)

// Lifecycle and rule violations.
var (
	ErrPlanAlreadyClosed           = errors.New("plan is already closed")
	ErrPlanAlreadyDeprecated       = errors.New("plan is already deprecated")
	ErrPlanAlreadyPublished        = errors.New("plan is already published")
	ErrPlanNotYetPublished         = errors.New("plan is not yet published")
	ErrPlanHasActiveSubscriptions  = errors.New("plan has active subscriptions")
	ErrKeylessPlanAlreadyPublished = errors.New("a keyless plan is already published for this api")
	ErrPlanNotSubscribable         = errors.New("plan does not accept subscriptions")
	ErrPlanSecurityImmutable       = errors.New("plan security type cannot be changed")

	ErrApiRunning          = errors.New("api must be stopped before deletion")
	ErrApiArchived         = errors.New("archived api cannot be modified")
	ErrApiAlreadyStarted   = errors.New("api is already started")
	ErrApiAlreadyStopped   = errors.New("api is already stopped")
	ErrApiNotManagedByCRD  = errors.New("api is not managed by kubernetes")
	ErrApiManagedByCRD     = errors.New("api is managed by kubernetes and is read only")
	ErrContextPathConflict = errors.New("context path is already used by another api")

	ErrSubscriptionNotActive     = errors.New("subscription is not active")
	ErrSubscriptionAlreadyExists = errors.New("application already subscribed to this plan")
	ErrSubscriptionNotPending    = errors.New("subscription is not pending")
	ErrSubscriptionInvalidPause  = errors.New("only accepted subscriptions can be paused")
	ErrSubscriptionNotPaused     = errors.New("subscription is not paused")
	ErrApplicationArchived       = errors.New("application is archived")
	ErrPrimaryOwnerMembership    = errors.New("primary owner membership can only change through ownership transfer")
	ErrMemberAlreadyExists       = errors.New("member already has a role on this reference")
	ErrTransferToCurrentOwner    = errors.New("member is already the primary owner")
	ErrTokenNotFound             = errors.New("token not found")
	ErrInvalidScope              = errors.New("invalid token scope")
	ErrInvalidTier               = errors.New("invalid rate limit tier")
	ErrTokenOwnedByAnotherUser   = errors.New("token belongs to another user")
)

// NotFoundError reports a missing entity of a given kind.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s [%s] cannot be found", e.Kind, e.ID)
}

// Entity kinds reported by NotFoundError.
const (
	KindApi          = "Api"
	KindPlan         = "Plan"
	KindSubscription = "Subscription"
	KindApplication  = "Application"
	KindGroup        = "Group"
	KindUser         = "User"
	KindRole         = "Role"
	KindMember       = "Member"
	KindIntegration  = "Integration"
)

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError reports invalid input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PrimaryOwnerNotFoundError reports a reference without a resolvable primary owner.
type PrimaryOwnerNotFoundError struct {
	ReferenceType model.ReferenceType
	ReferenceID   string
}

func (e *PrimaryOwnerNotFoundError) Error() string {
	return fmt.Sprintf("primary owner of %s [%s] cannot be found", e.ReferenceType, e.ReferenceID)
}
