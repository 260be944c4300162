package model

import "time"

// AlertTrigger is an alert rule bound to an API, application or environment.
type AlertTrigger struct {
	ID            string
	Name          string
	ReferenceType ReferenceType
	ReferenceID   string
	EnvironmentID string
	Severity      string
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InstallationStatus is the state of a one-shot upgrader run.
type InstallationStatus string

const (
	InstallationRunning InstallationStatus = "RUNNING"
	InstallationSuccess InstallationStatus = "SUCCESS"
	InstallationFailure InstallationStatus = "FAILURE"
)
