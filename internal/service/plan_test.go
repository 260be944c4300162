package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/testutil"
)

func TestPlanService_CreateAppendsOrderAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)

	first, err := f.plans.Create(ctx, f.ec, api.ID, CreatePlanInput{Name: "Gold", Security: model.SecurityApiKey})
	require.NoError(t, err)
	second, err := f.plans.Create(ctx, f.ec, api.ID, CreatePlanInput{Name: "Silver", Security: model.SecurityJWT})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Order)
	assert.Equal(t, 2, second.Order)
	assert.Equal(t, model.PlanStaging, first.Status)
	assert.Equal(t, model.ValidationAuto, first.Validation)
	assert.Equal(t, model.PlanModeStandard, first.Mode)
	assert.NotNil(t, first.NeedRedeployAt)

	entries := f.audits.All()
	require.Len(t, entries, 2)
	assert.Equal(t, model.EventPlanCreated, entries[0].Event)
	assert.Equal(t, model.ReferenceAPI, entries[0].ReferenceType)
	assert.Equal(t, api.ID, entries[0].ReferenceID)
	assert.Equal(t, first.ID, entries[0].Properties[model.AuditPropertyPlan])
	assert.Equal(t, testUser, entries[0].User)
	assert.NotEmpty(t, entries[0].Patch)

	assert.Equal(t, []string{model.EventPlanCreated, model.EventPlanCreated}, f.publisher.Types())
	assert.Equal(t, uint64(2), f.metrics.Snapshot().ManagementOperations[model.EventPlanCreated])
}

func TestPlanService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)

	tests := []struct {
		name  string
		in    CreatePlanInput
		field string
	}{
		{"missing name", CreatePlanInput{Security: model.SecurityApiKey}, "name"},
		{"unknown security", CreatePlanInput{Name: "p", Security: "BASIC"}, "security"},
		{"deprecated status", CreatePlanInput{Name: "p", Security: model.SecurityApiKey, Status: model.PlanDeprecated}, "status"},
		{"closed status", CreatePlanInput{Name: "p", Security: model.SecurityApiKey, Status: model.PlanClosed}, "status"},
		{"secured push plan", CreatePlanInput{Name: "p", Security: model.SecurityApiKey, Mode: model.PlanModePush}, "security"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, err := f.plans.Create(ctx, f.ec, api.ID, test.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, test.field, verr.Field)
		})
	}
}

func TestPlanService_CreateOnUnknownApi(t *testing.T) {
	f := newFixture(t)

	_, err := f.plans.Create(context.Background(), f.ec, "missing", CreatePlanInput{Name: "p", Security: model.SecurityKeyless})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Api [missing] cannot be found", err.Error())
}

func TestPlanService_CreateHidesOtherEnvironments(t *testing.T) {
	f := newFixture(t)
	api := f.addApi(t)

	ec := f.ec
	ec.EnvironmentID = "OTHER"
	_, err := f.plans.List(context.Background(), ec, api.ID)
	assert.True(t, IsNotFound(err))
}

func TestPlanService_KeylessConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	f.addPlan(t, api, "Open", model.SecurityKeyless, model.PlanPublished)

	_, err := f.plans.Create(ctx, f.ec, api.ID, CreatePlanInput{
		Name:     "Open again",
		Security: model.SecurityKeyless,
		Status:   model.PlanPublished,
	})
	assert.ErrorIs(t, err, ErrKeylessPlanAlreadyPublished)

	staging, err := f.plans.Create(ctx, f.ec, api.ID, CreatePlanInput{Name: "Open staging", Security: model.SecurityKeyless})
	require.NoError(t, err, "a staging keyless plan does not conflict")

	_, err = f.plans.Publish(ctx, f.ec, api.ID, staging.ID)
	assert.ErrorIs(t, err, ErrKeylessPlanAlreadyPublished)
}

func TestPlanService_PublishTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	plan := f.addPlan(t, api, "Gold", model.SecurityApiKey, model.PlanStaging)

	published, err := f.plans.Publish(ctx, f.ec, api.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	_, err = f.plans.Publish(ctx, f.ec, api.ID, plan.ID)
	assert.ErrorIs(t, err, ErrPlanAlreadyPublished)

	_, err = f.plans.Close(ctx, f.ec, api.ID, plan.ID)
	require.NoError(t, err)
	_, err = f.plans.Publish(ctx, f.ec, api.ID, plan.ID)
	assert.ErrorIs(t, err, ErrPlanAlreadyClosed)
}

func TestPlanService_Deprecate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)

	staging := f.addPlan(t, api, "Staging", model.SecurityApiKey, model.PlanStaging)
	_, err := f.plans.Deprecate(ctx, f.ec, api.ID, staging.ID, false)
	assert.ErrorIs(t, err, ErrPlanNotYetPublished)

	deprecated, err := f.plans.Deprecate(ctx, f.ec, api.ID, staging.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.PlanDeprecated, deprecated.Status)

	_, err = f.plans.Deprecate(ctx, f.ec, api.ID, staging.ID, true)
	assert.ErrorIs(t, err, ErrPlanAlreadyDeprecated)

	closed := f.addPlan(t, api, "Closed", model.SecurityApiKey, model.PlanClosed)
	_, err = f.plans.Deprecate(ctx, f.ec, api.ID, closed.ID, true)
	assert.ErrorIs(t, err, ErrPlanAlreadyClosed, "cannot deprecate an already closed plan")
}

func TestPlanService_CloseRejectsActiveSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	plan := f.addPlan(t, api, "Gold", model.SecurityApiKey, model.PlanPublished)

	for _, status := range model.ActiveSubscriptionStatuses {
		status := status
		t.Run(string(status), func(t *testing.T) {
			sub := testutil.NewTestSubscription(t, plan, "app-1", status)
			require.NoError(t, f.store.CreateSubscription(ctx, sub))
			t.Cleanup(func() {
				sub.Status = model.SubscriptionClosed
				require.NoError(t, f.store.UpdateSubscription(ctx, sub))
			})

			_, err := f.plans.Close(ctx, f.ec, api.ID, plan.ID)
			assert.ErrorIs(t, err, ErrPlanHasActiveSubscriptions)
			assert.ErrorIs(t, f.plans.Delete(ctx, f.ec, api.ID, plan.ID), ErrPlanHasActiveSubscriptions)
		})
	}

	closed, err := f.plans.Close(ctx, f.ec, api.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	_, err = f.plans.Close(ctx, f.ec, api.ID, plan.ID)
	assert.ErrorIs(t, err, ErrPlanAlreadyClosed)
}

func TestPlanService_CloseAndDeleteCompactOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	a := f.addPlan(t, api, "A", model.SecurityApiKey, model.PlanStaging)
	b := f.addPlan(t, api, "B", model.SecurityApiKey, model.PlanStaging)
	c := f.addPlan(t, api, "C", model.SecurityApiKey, model.PlanStaging)
	d := f.addPlan(t, api, "D", model.SecurityApiKey, model.PlanStaging)

	_, err := f.plans.Close(ctx, f.ec, api.ID, a.ID)
	require.NoError(t, err)
	require.NoError(t, f.plans.Delete(ctx, f.ec, api.ID, c.ID))

	plans, err := f.plans.List(ctx, f.ec, api.ID, model.PlanStaging)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, b.ID, plans[0].ID)
	assert.Equal(t, 1, plans[0].Order)
	assert.Equal(t, d.ID, plans[1].ID)
	assert.Equal(t, 2, plans[1].Order)

	_, err = f.plans.Get(ctx, f.ec, api.ID, c.ID)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, f.auditEvents(), model.EventPlanDeleted)

	next, err := f.plans.Create(ctx, f.ec, api.ID, CreatePlanInput{Name: "E", Security: model.SecurityApiKey})
	require.NoError(t, err)
	assert.Equal(t, 3, next.Order, "closed plans do not count for the next order")
}

func TestPlanService_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	plan := f.addPlan(t, api, "Gold", model.SecurityApiKey, model.PlanPublished)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	freezeTime(t, created)
	renamed, err := f.plans.Update(ctx, f.ec, api.ID, plan.ID, UpdatePlanInput{Name: "Platinum"})
	require.NoError(t, err)
	assert.Equal(t, "Platinum", renamed.Name)
	assert.NotEqual(t, created, *renamed.NeedRedeployAt, "cosmetic changes do not require a redeploy")

	later := created.Add(time.Hour)
	freezeTime(t, later)
	tagged, err := f.plans.Update(ctx, f.ec, api.ID, plan.ID, UpdatePlanInput{Name: "Platinum", Tags: []string{"internal"}})
	require.NoError(t, err)
	assert.Equal(t, later, *tagged.NeedRedeployAt)

	_, err = f.plans.Update(ctx, f.ec, api.ID, plan.ID, UpdatePlanInput{Name: "Platinum", Security: model.SecurityJWT})
	assert.ErrorIs(t, err, ErrPlanSecurityImmutable)

	_, err = f.plans.Update(ctx, f.ec, api.ID, plan.ID, UpdatePlanInput{})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.plans.Close(ctx, f.ec, api.ID, plan.ID)
	require.NoError(t, err)
	_, err = f.plans.Update(ctx, f.ec, api.ID, plan.ID, UpdatePlanInput{Name: "Again"})
	assert.ErrorIs(t, err, ErrPlanAlreadyClosed)
}

func TestPlanService_UpdateChecksApiOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	other := f.addApi(t)
	plan := f.addPlan(t, other, "Gold", model.SecurityApiKey, model.PlanStaging)

	_, err := f.plans.Update(ctx, f.ec, api.ID, plan.ID, UpdatePlanInput{Name: "x"})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, KindPlan, nf.Kind)
	assert.Equal(t, plan.ID, nf.ID)
}

func TestPlanService_Reorder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	a := f.addPlan(t, api, "A", model.SecurityApiKey, model.PlanStaging)
	b := f.addPlan(t, api, "B", model.SecurityApiKey, model.PlanStaging)
	c := f.addPlan(t, api, "C", model.SecurityApiKey, model.PlanStaging)

	moved, err := f.plans.Reorder(ctx, f.ec, api.ID, c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Order)

	plans, err := f.plans.List(ctx, f.ec, api.ID)
	require.NoError(t, err)
	ids := []string{plans[0].ID, plans[1].ID, plans[2].ID}
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, ids)

	moved, err = f.plans.Reorder(ctx, f.ec, api.ID, c.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, moved.Order, "positions past the end move the plan last")

	_, err = f.plans.Reorder(ctx, f.ec, api.ID, c.ID, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	closed := f.addPlan(t, api, "Closed", model.SecurityApiKey, model.PlanClosed)
	_, err = f.plans.Reorder(ctx, f.ec, api.ID, closed.ID, 1)
	assert.ErrorIs(t, err, ErrPlanAlreadyClosed)
}

func TestPlanService_RejectsKubernetesApis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	plan := f.addPlan(t, api, "Gold", model.SecurityApiKey, model.PlanStaging)

	api.DefinitionContext.Origin = model.OriginKubernetes
	require.NoError(t, f.store.UpdateApi(ctx, api))

	_, err := f.plans.Create(ctx, f.ec, api.ID, CreatePlanInput{Name: "x", Security: model.SecurityApiKey})
	assert.ErrorIs(t, err, ErrApiManagedByCRD)
	_, err = f.plans.Publish(ctx, f.ec, api.ID, plan.ID)
	assert.ErrorIs(t, err, ErrApiManagedByCRD)
	assert.ErrorIs(t, f.plans.Delete(ctx, f.ec, api.ID, plan.ID), ErrApiManagedByCRD)

	plans, err := f.plans.List(ctx, f.ec, api.ID)
	require.NoError(t, err, "reads are still allowed")
	assert.Len(t, plans, 1)
}

func TestPlanService_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.plans.publisher = failingPublisher{}
	api := f.addApi(t)

	_, err := f.plans.Create(context.Background(), f.ec, api.ID, CreatePlanInput{Name: "Gold", Security: model.SecurityApiKey})
	assert.NoError(t, err)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker unavailable")
}
