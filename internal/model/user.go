package model

import (
	"slices"
	"time"
)

// User is a platform user.
type User struct {
	ID             string
	OrganizationID string
	Email          string
	Firstname      string
	Lastname       string
	Source         string
	CreatedAt      time.Time
}

// DisplayName returns "Firstname Lastname", falling back to the email.
func (u *User) DisplayName() string {
	switch {
	case u.Firstname != "" && u.Lastname != "":
		return u.Firstname + " " + u.Lastname
	case u.Firstname != "":
		return u.Firstname
	case u.Lastname != "":
		return u.Lastname
	}
	return u.Email
}

// Group is a set of users sharing memberships.
type Group struct {
	ID            string
	EnvironmentID string
	Name          string
	// ApiPrimaryOwner is the user acting as owner for APIs owned by the group.
	ApiPrimaryOwner string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Application status values.
const (
	ApplicationActive   = "ACTIVE"
	ApplicationArchived = "ARCHIVED"
)

// Application is a consumer of APIs.
type Application struct {
	ID            string
	EnvironmentID string
	Name          string
	Description   string
	Status        string
	Groups        []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasGroup checks whether the application belongs to a group.
func (a *Application) HasGroup(groupID string) bool {
	return slices.Contains(a.Groups, groupID)
}

// Integration connects the platform to a third-party API provider.
type Integration struct {
	ID            string
	EnvironmentID string
	Name          string
	Provider      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
