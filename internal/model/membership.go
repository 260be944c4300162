package model

import "time"

// MemberType identifies what kind of principal holds a membership.
type MemberType string

const (
	MemberUser  MemberType = "USER"
	MemberGroup MemberType = "GROUP"
)

// ReferenceType identifies the object a membership, role or audit refers to.
type ReferenceType string

const (
	ReferenceAPI          ReferenceType = "API"
	ReferenceApplication  ReferenceType = "APPLICATION"
	ReferenceGroup        ReferenceType = "GROUP"
	ReferenceIntegration  ReferenceType = "INTEGRATION"
	ReferenceEnvironment  ReferenceType = "ENVIRONMENT"
	ReferenceOrganization ReferenceType = "ORGANIZATION"
)

// RoleScope mirrors ReferenceType for role definitions.
type RoleScope = ReferenceType

// System role names.
const (
	RolePrimaryOwner = "PRIMARY_OWNER"
	RoleOwner        = "OWNER"
	RoleUser         = "USER"
)

// Role is a named set of permissions within a scope of an organization.
type Role struct {
	ID             string
	Scope          RoleScope
	Name           string
	OrganizationID string
	Description    string
	DefaultRole    bool
	System         bool
	Permissions    map[string][]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsPrimaryOwner returns true if the role is the primary owner role.
func (r *Role) IsPrimaryOwner() bool {
	return r.Name == RolePrimaryOwner
}

// Membership gives a user or group a role on a referenced object.
type Membership struct {
	ID            string
	MemberID      string
	MemberType    MemberType
	ReferenceType ReferenceType
	ReferenceID   string
	RoleID        string
	Source        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PrimaryOwner is the resolved owner of an API, application or integration.
type PrimaryOwner struct {
	ID          string
	Email       string
	DisplayName string
	Type        MemberType
}
