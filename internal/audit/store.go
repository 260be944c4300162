// Package audit persists and queries the audit trail of management operations.
package audit

import (
	"context"
	"errors"

	"github.com/apimplane/apim/internal/model"
)

// ErrInvalidQuery is returned when a search names no reference.
var ErrInvalidQuery = errors.New("audit query requires a reference")

// Store records audit entries and searches them by reference.
type Store interface {
	Record(ctx context.Context, entry *model.AuditEntry) error
	Search(ctx context.Context, q model.AuditQuery) ([]*model.AuditEntry, int, error)
}

const defaultPageSize = 20

func normalizePage(q model.AuditQuery) (page, size int) {
	page, size = q.Page, q.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	return page, size
}
