package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/testutil"
)

func TestPortalService_OnlyPublishedPublicApis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	visible := f.addApi(t)
	visible.Visibility = model.VisibilityPublic
	visible.LifecycleState = model.LifecyclePublished
	require.NoError(t, f.store.UpdateApi(ctx, visible))

	private := f.addApi(t)
	private.LifecycleState = model.LifecyclePublished
	require.NoError(t, f.store.UpdateApi(ctx, private))

	orphan := testutil.NewTestApi(t, testEnv)
	orphan.Visibility = model.VisibilityPublic
	orphan.LifecycleState = model.LifecyclePublished
	require.NoError(t, f.store.CreateApi(ctx, orphan))

	apis, total, err := f.portal.ListApis(ctx, testOrg, testEnv, "", Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, apis, 2)

	owners := map[string]*model.PrimaryOwner{}
	for _, a := range apis {
		owners[a.Api.ID] = a.Owner
	}
	require.NotNil(t, owners[visible.ID])
	assert.Equal(t, testUser, owners[visible.ID].ID)
	assert.Nil(t, owners[orphan.ID], "apis without a primary owner are still listed")

	_, err = f.portal.GetApi(ctx, testOrg, testEnv, private.ID)
	assert.True(t, IsNotFound(err))
	_, err = f.portal.GetApi(ctx, testOrg, "OTHER", visible.ID)
	assert.True(t, IsNotFound(err))

	got, err := f.portal.GetApi(ctx, testOrg, testEnv, visible.ID)
	require.NoError(t, err)
	assert.Equal(t, visible.ID, got.Api.ID)
}

func TestPortalService_ListPlansHidesUnpublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)

	gold := f.addPlan(t, api, "Gold", model.SecurityApiKey, model.PlanPublished)
	f.addPlan(t, api, "Staging", model.SecurityApiKey, model.PlanStaging)
	f.addPlan(t, api, "Old", model.SecurityApiKey, model.PlanDeprecated)
	f.addPlan(t, api, "Closed", model.SecurityApiKey, model.PlanClosed)

	api.Visibility = model.VisibilityPublic
	api.LifecycleState = model.LifecyclePublished
	require.NoError(t, f.store.UpdateApi(ctx, api))

	plans, err := f.portal.ListPlans(ctx, testEnv, api.ID)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, gold.ID, plans[0].ID)
}

func TestPortalService_ListApplicationSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addApplication(t, "app-1")

	public := f.addApi(t)
	public.Visibility = model.VisibilityPublic
	public.LifecycleState = model.LifecyclePublished
	require.NoError(t, f.store.UpdateApi(ctx, public))
	hidden := f.addApi(t)

	visiblePlan := f.addPlan(t, public, "Gold", model.SecurityApiKey, model.PlanPublished)
	hiddenPlan := f.addPlan(t, hidden, "Gold", model.SecurityApiKey, model.PlanPublished)

	older := testutil.NewTestSubscription(t, visiblePlan, "app-1", model.SubscriptionClosed)
	newer := testutil.NewTestSubscription(t, visiblePlan, "app-1", model.SubscriptionAccepted)
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)
	other := testutil.NewTestSubscription(t, hiddenPlan, "app-1", model.SubscriptionAccepted)
	for _, sub := range []*model.Subscription{older, newer, other} {
		require.NoError(t, f.store.CreateSubscription(ctx, sub))
	}

	subs, err := f.portal.ListApplicationSubscriptions(ctx, testEnv, "app-1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, newer.ID, subs[0].ID)
	assert.Equal(t, older.ID, subs[1].ID)

	_, err = f.portal.ListApplicationSubscriptions(ctx, "OTHER", "app-1")
	assert.True(t, IsNotFound(err))
	_, err = f.portal.ListApplicationSubscriptions(ctx, testEnv, "missing")
	assert.True(t, IsNotFound(err))
}
