package service

import (
	"context"
	"log/slog"

	"github.com/apimplane/apim/internal/audit"
	"github.com/apimplane/apim/internal/metrics"
	"github.com/apimplane/apim/internal/model"
)

// AuditService records audit entries for management operations.
type AuditService struct {
	store   audit.Store
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(store audit.Store, recorder metrics.Recorder, logger *slog.Logger) *AuditService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{
		store:   store,
		metrics: recorder,
		logger:  logger.With("component", "audit"),
	}
}

// AuditInput describes one audited change.
type AuditInput struct {
	ReferenceType model.ReferenceType
	ReferenceID   string
	Event         string
	Properties    map[string]string
	Before        any
	After         any
}

// Record stores an audit entry. Failing to compute the patch does not
// prevent the entry from being written.
func (s *AuditService) Record(ctx context.Context, ec ExecutionContext, in AuditInput) error {
	patch, err := audit.Diff(in.Before, in.After)
	if err != nil {
		s.logger.Warn("audit patch failed", "event", in.Event, "reference_id", in.ReferenceID, "error", err)
		patch = ""
	}

	entry := &model.AuditEntry{
		ID:             newID(),
		OrganizationID: ec.OrganizationID,
		EnvironmentID:  ec.EnvironmentID,
		ReferenceType:  in.ReferenceType,
		ReferenceID:    in.ReferenceID,
		User:           ec.UserID,
		Event:          in.Event,
		Properties:     in.Properties,
		Patch:          patch,
		CreatedAt:      nowFunc(),
	}
	if err := s.store.Record(ctx, entry); err != nil {
		return err
	}

	s.metrics.IncManagementOperation(in.Event)
	return nil
}

// Search returns a page of audit entries for a reference, newest first.
func (s *AuditService) Search(ctx context.Context, q model.AuditQuery) ([]*model.AuditEntry, int, error) {
	page := Page{Number: q.Page, Size: q.Size}.normalize()
	q.Page, q.Size = page.Number, page.Size
	return s.store.Search(ctx, q)
}
