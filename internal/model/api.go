// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// ApiState is the deployment state of an API on the gateways.
type ApiState string

const (
	ApiStateStarted ApiState = "STARTED"
	ApiStateStopped ApiState = "STOPPED"
)

// ApiLifecycleState is the portal lifecycle of an API.
type ApiLifecycleState string

const (
	LifecycleCreated     ApiLifecycleState = "CREATED"
	LifecyclePublished   ApiLifecycleState = "PUBLISHED"
	LifecycleUnpublished ApiLifecycleState = "UNPUBLISHED"
	LifecycleDeprecated  ApiLifecycleState = "DEPRECATED"
	LifecycleArchived    ApiLifecycleState = "ARCHIVED"
)

// IsValid returns true if the lifecycle state is known.
func (s ApiLifecycleState) IsValid() bool {
	switch s {
	case LifecycleCreated, LifecyclePublished, LifecycleUnpublished, LifecycleDeprecated, LifecycleArchived:
		return true
	}
	return false
}

// Visibility of an API in the developer portal.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// IsValid returns true if the visibility is known.
func (v Visibility) IsValid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// DefinitionVersion of the API definition format.
type DefinitionVersion string

const (
	DefinitionV2 DefinitionVersion = "V2"
	DefinitionV4 DefinitionVersion = "V4"
)

// ApiType distinguishes synchronous proxies from message APIs.
type ApiType string

const (
	ApiTypeProxy   ApiType = "PROXY"
	ApiTypeMessage ApiType = "MESSAGE"
)

// Origin of an API definition.
const (
	OriginManagement = "MANAGEMENT"
	OriginKubernetes = "KUBERNETES"
)

// DefinitionContext describes who manages an API definition.
type DefinitionContext struct {
	Origin   string `json:"origin"`
	Mode     string `json:"mode"`
	SyncFrom string `json:"syncFrom"`
}

// IsKubernetes returns true when the API is managed by the operator.
func (c DefinitionContext) IsKubernetes() bool {
	return c.Origin == OriginKubernetes
}

// Api represents an API managed by the platform.
type Api struct {
	ID                             string
	CrossID                        string
	EnvironmentID                  string
	Name                           string
	Version                        string
	Description                    string
	DefinitionVersion              DefinitionVersion
	Type                           ApiType
	ContextPath                    string
	State                          ApiState
	LifecycleState                 ApiLifecycleState
	Visibility                     Visibility
	Tags                           []string
	Labels                         []string
	Categories                     []string
	Groups                         []string
	DefinitionContext              DefinitionContext
	Picture                        string
	DisableMembershipNotifications bool
	CreatedAt                      time.Time
	UpdatedAt                      time.Time
	DeployedAt                     *time.Time
}

// IsStarted returns true if the API is deployed and running.
func (a *Api) IsStarted() bool {
	return a.State == ApiStateStarted
}

// IsArchived returns true if the API reached the terminal lifecycle state.
func (a *Api) IsArchived() bool {
	return a.LifecycleState == LifecycleArchived
}

// IsPortalVisible returns true if the API can be listed in the public portal.
func (a *Api) IsPortalVisible() bool {
	return a.Visibility == VisibilityPublic && a.LifecycleState == LifecyclePublished
}

// HasGroup checks whether the API is shared with a group.
func (a *Api) HasGroup(groupID string) bool {
	return slices.Contains(a.Groups, groupID)
}
