package service

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ExecutionContext identifies who performs an operation and where.
type ExecutionContext struct {
	OrganizationID string
	EnvironmentID  string
	UserID         string
}

// Page bounds a listing.
type Page struct {
	Number int
	Size   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (p Page) normalize() Page {
	if p.Number <= 0 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func newID() string {
	return ulid.Make().String()
}

// nowFunc is replaced in tests that assert timestamps.
var nowFunc = func() time.Time {
	return time.Now().UTC()
}
