package dto

import (
	"encoding/json"
	"time"

	"github.com/apimplane/apim/internal/model"
)

// AuditEntity is one entry of an audit trail.
type AuditEntity struct {
	ID            string            `json:"id"`
	ReferenceType string            `json:"referenceType"`
	ReferenceID   string            `json:"referenceId"`
	User          string            `json:"user"`
	Event         string            `json:"event"`
	Properties    map[string]string `json:"properties,omitempty"`
	Patch         json.RawMessage   `json:"patch,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// ToAuditEntities converts audit entries to DTOs.
func ToAuditEntities(entries []*model.AuditEntry) []AuditEntity {
	out := make([]AuditEntity, 0, len(entries))
	for _, e := range entries {
		entity := AuditEntity{
			ID:            e.ID,
			ReferenceType: string(e.ReferenceType),
			ReferenceID:   e.ReferenceID,
			User:          e.User,
			Event:         e.Event,
			Properties:    e.Properties,
			CreatedAt:     e.CreatedAt,
		}
		if e.Patch != "" && json.Valid([]byte(e.Patch)) {
			entity.Patch = json.RawMessage(e.Patch)
		}
		out = append(out, entity)
	}
	return out
}
