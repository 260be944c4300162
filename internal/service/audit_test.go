package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apimplane/apim/internal/audit"
	"github.com/apimplane/apim/internal/model"
)

func TestAuditService_RecordStoresPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := &model.Plan{ID: "p1", Name: "Gold", Status: model.PlanStaging}
	after := &model.Plan{ID: "p1", Name: "Gold", Status: model.PlanPublished}
	require.NoError(t, f.audit.Record(ctx, f.ec, AuditInput{
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   "api-1",
		Event:         model.EventPlanPublished,
		Properties:    map[string]string{model.AuditPropertyPlan: "p1"},
		Before:        before,
		After:         after,
	}))

	entries, total, err := f.audit.Search(ctx, model.AuditQuery{ReferenceType: model.ReferenceAPI, ReferenceID: "api-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, testOrg, entries[0].OrganizationID)
	assert.Equal(t, testEnv, entries[0].EnvironmentID)
	assert.Contains(t, entries[0].Patch, `"path":"/Status"`)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().ManagementOperations[model.EventPlanPublished])
}

func TestAuditService_SearchRequiresReference(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.audit.Search(context.Background(), model.AuditQuery{})
	assert.ErrorIs(t, err, audit.ErrInvalidQuery)
}
