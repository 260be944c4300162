package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
	"github.com/apimplane/apim/internal/testutil"
)

func newApiInput(contextPath string) CreateApiInput {
	return CreateApiInput{Name: "Echo", Version: "1.0", ContextPath: contextPath}
}

func TestApiService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := newApiInput("/echo/")
	in.CreateKeylessPlan = true
	api, err := f.apis.Create(ctx, f.ec, in)
	require.NoError(t, err)

	assert.Equal(t, "/echo", api.ContextPath)
	assert.Equal(t, model.ApiStateStopped, api.State)
	assert.Equal(t, model.LifecycleCreated, api.LifecycleState)
	assert.Equal(t, model.VisibilityPrivate, api.Visibility)
	assert.Equal(t, model.DefinitionV4, api.DefinitionVersion)
	assert.Equal(t, model.OriginManagement, api.DefinitionContext.Origin)
	assert.Equal(t, testEnv, api.EnvironmentID)

	owner, err := f.owners.GetApiPrimaryOwner(ctx, testOrg, api.ID)
	require.NoError(t, err)
	assert.Equal(t, testUser, owner.ID)

	plans, err := f.plans.List(ctx, f.ec, api.ID)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].IsKeyless())
	assert.True(t, plans[0].IsPublished())

	assert.Equal(t, []string{
		model.EventMembershipCreated,
		model.EventApiCreated,
		model.EventPlanCreated,
	}, f.auditEvents())
}

func TestApiService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateApiInput
		field string
	}{
		{"missing name", CreateApiInput{Version: "1", ContextPath: "/a"}, "name"},
		{"missing version", CreateApiInput{Name: "a", ContextPath: "/a"}, "apiVersion"},
		{"missing context path", CreateApiInput{Name: "a", Version: "1"}, "contextPath"},
		{"relative context path", CreateApiInput{Name: "a", Version: "1", ContextPath: "echo"}, "contextPath"},
		{"double slash", CreateApiInput{Name: "a", Version: "1", ContextPath: "/a//b"}, "contextPath"},
		{"illegal character", CreateApiInput{Name: "a", Version: "1", ContextPath: "/a b"}, "contextPath"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, err := f.apis.Create(ctx, f.ec, test.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, test.field, verr.Field)
		})
	}
}

func TestApiService_CreateContextPathConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.apis.Create(ctx, f.ec, newApiInput("/echo"))
	require.NoError(t, err)

	_, err = f.apis.Create(ctx, f.ec, newApiInput("/echo/"))
	assert.ErrorIs(t, err, ErrContextPathConflict)
}

func TestApiService_CreateWithoutPrimaryOwnerRoleStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	noRoles := f.ec
	noRoles.OrganizationID = "org-without-roles"

	_, err := f.apis.Create(ctx, noRoles, newApiInput("/echo"))
	require.True(t, IsNotFound(err), "got %v", err)
	assert.Contains(t, err.Error(), "API_PRIMARY_OWNER")

	apis, total, err := f.apis.Search(ctx, f.ec, "", Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, apis)
	assert.Empty(t, f.auditEvents())

	// A retry reports the same missing role instead of a path conflict.
	_, err = f.apis.Create(ctx, noRoles, newApiInput("/echo"))
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.NotErrorIs(t, err, ErrContextPathConflict)

	_, err = f.apis.Create(ctx, f.ec, newApiInput("/echo"))
	assert.NoError(t, err)
}

func TestApiService_CreateGroupPrimaryOwner(t *testing.T) {
	f := newFixtureWithMode(t, PrimaryOwnerModeGroup)
	ctx := context.Background()
	f.addUser(t, "user-2", "Jane", "Roe", "jane@example.com")
	f.addGroup(t, "no-owner", "Readers", "")
	f.addGroup(t, "platform", "Platform", "user-2")

	_, err := f.apis.Create(ctx, f.ec, newApiInput("/a"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "groups", verr.Field)

	in := newApiInput("/b")
	in.Groups = []string{"missing", "no-owner", "platform"}
	api, err := f.apis.Create(ctx, f.ec, in)
	require.NoError(t, err)

	owner, err := f.owners.GetApiPrimaryOwner(ctx, testOrg, api.ID)
	require.NoError(t, err)
	assert.Equal(t, "platform", owner.ID)
	assert.Equal(t, model.MemberGroup, owner.Type)
	assert.Equal(t, "jane@example.com", owner.Email)
}

func TestApiService_SearchScopesToEnvironment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, path := range []string{"/one", "/two"} {
		in := newApiInput(path)
		in.Name = "Api" + path
		_, err := f.apis.Create(ctx, f.ec, in)
		require.NoError(t, err)
	}
	foreign := testutil.NewTestApi(t, "OTHER")
	require.NoError(t, f.store.CreateApi(ctx, foreign))

	apis, total, err := f.apis.Search(ctx, f.ec, "", Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, apis, 2)

	apis, total, err = f.apis.Search(ctx, f.ec, "TWO", Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Api/two", apis[0].Name)

	_, err = f.apis.Get(ctx, f.ec, foreign.ID)
	assert.True(t, IsNotFound(err))
}

func TestApiService_UpdateLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api, err := f.apis.Create(ctx, f.ec, newApiInput("/echo"))
	require.NoError(t, err)

	update := func(state model.ApiLifecycleState) error {
		_, err := f.apis.Update(ctx, f.ec, api.ID, UpdateApiInput{Name: "Echo", Version: "2.0", LifecycleState: state})
		return err
	}

	require.NoError(t, update(model.LifecyclePublished))
	var verr *ValidationError
	assert.ErrorAs(t, update(model.LifecycleCreated), &verr)
	assert.ErrorAs(t, update("RETIRED"), &verr)
	require.NoError(t, update(model.LifecycleDeprecated))
	assert.ErrorAs(t, update(model.LifecyclePublished), &verr, "deprecated apis can only be archived")
	require.NoError(t, update(model.LifecycleArchived))
	assert.ErrorIs(t, update(model.LifecyclePublished), ErrApiArchived)

	got, err := f.apis.Get(ctx, f.ec, api.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.0", got.Version)
	assert.Equal(t, model.LifecycleArchived, got.LifecycleState)
}

func TestApiService_StartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api, err := f.apis.Create(ctx, f.ec, newApiInput("/echo"))
	require.NoError(t, err)

	started, err := f.apis.Start(ctx, f.ec, api.ID)
	require.NoError(t, err)
	assert.True(t, started.IsStarted())
	assert.NotNil(t, started.DeployedAt)

	_, err = f.apis.Start(ctx, f.ec, api.ID)
	assert.ErrorIs(t, err, ErrApiAlreadyStarted)

	assert.ErrorIs(t, f.apis.Delete(ctx, f.ec, api.ID), ErrApiRunning)

	_, err = f.apis.Stop(ctx, f.ec, api.ID)
	require.NoError(t, err)
	_, err = f.apis.Stop(ctx, f.ec, api.ID)
	assert.ErrorIs(t, err, ErrApiAlreadyStopped)

	types := f.publisher.Types()
	assert.Contains(t, types, model.EventApiStarted)
	assert.Contains(t, types, model.EventApiStopped)
	for _, e := range f.publisher.Events() {
		assert.Equal(t, api.ID, e.Key())
	}
}

func TestApiService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api, err := f.apis.Create(ctx, f.ec, newApiInput("/echo"))
	require.NoError(t, err)
	plan := f.addPlan(t, api, "Gold", model.SecurityJWT, model.PlanPublished)
	app := f.addApplication(t, "app-1")

	sub, _, err := f.subs.Create(ctx, f.ec, api.ID, CreateSubscriptionInput{PlanID: plan.ID, ApplicationID: app.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, f.apis.Delete(ctx, f.ec, api.ID), ErrPlanHasActiveSubscriptions)

	_, err = f.subs.Close(ctx, f.ec, api.ID, sub.ID)
	require.NoError(t, err)
	require.NoError(t, f.apis.Delete(ctx, f.ec, api.ID))

	_, err = f.apis.Get(ctx, f.ec, api.ID)
	assert.True(t, IsNotFound(err))
	_, err = f.store.GetPlan(ctx, plan.ID)
	assert.ErrorIs(t, err, repository.ErrPlanNotFound)
	memberships, err := f.store.FindMemberships(ctx, repository.MembershipQuery{ReferenceID: api.ID})
	require.NoError(t, err)
	assert.Empty(t, memberships)

	assert.Contains(t, f.auditEvents(), model.EventApiDeleted)
	assert.True(t, IsNotFound(f.apis.Delete(ctx, f.ec, api.ID)))
}

func crdInput(plans map[string]CreatePlanInput) ImportCRDInput {
	return ImportCRDInput{
		CrossID:     "echo-crd",
		Name:        "Echo",
		Version:     "1.0",
		ContextPath: "/echo",
		State:       model.ApiStateStarted,
		Plans:       plans,
	}
}

func TestApiService_ImportCRDCreatesThenReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "user-2", "Jane", "Roe", "jane@example.com")

	in := crdInput(map[string]CreatePlanInput{
		"gold":   {Security: model.SecurityApiKey, Status: model.PlanPublished},
		"silver": {Security: model.SecurityJWT},
	})
	in.Members = []CRDMember{{ID: "user-2", Role: model.RoleOwner}, {ID: "ghost"}}
	api, err := f.apis.ImportCRD(ctx, f.ec, in)
	require.NoError(t, err)
	assert.True(t, api.DefinitionContext.IsKubernetes())
	assert.True(t, api.IsStarted())
	assert.NotNil(t, api.DeployedAt)

	plans, err := f.plans.List(ctx, f.ec, api.ID)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "gold", plans[0].Name)
	assert.Equal(t, model.PlanPublished, plans[0].Status)
	assert.Equal(t, "silver", plans[1].Name)

	members, err := f.members.ListMembers(ctx, model.ReferenceAPI, api.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// Second apply drops silver, renames nothing and adds bronze.
	in = crdInput(map[string]CreatePlanInput{
		"gold":   {Security: model.SecurityApiKey, Status: model.PlanPublished, Description: "updated"},
		"bronze": {Security: model.SecurityOAuth2},
	})
	in.Name = "Echo v2"
	again, err := f.apis.ImportCRD(ctx, f.ec, in)
	require.NoError(t, err)
	assert.Equal(t, api.ID, again.ID)
	assert.Equal(t, "Echo v2", again.Name)

	plans, err = f.plans.List(ctx, f.ec, api.ID)
	require.NoError(t, err)
	byName := map[string]*model.Plan{}
	for _, p := range plans {
		byName[p.Name] = p
	}
	require.Len(t, byName, 3)
	assert.Equal(t, "updated", byName["gold"].Description)
	assert.Equal(t, model.PlanClosed, byName["silver"].Status)
	assert.Equal(t, model.PlanStaging, byName["bronze"].Status)

	assert.Contains(t, f.auditEvents(), model.EventApiImported)
}

func TestApiService_ImportCRDGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.apis.ImportCRD(ctx, f.ec, ImportCRDInput{Name: "x", Version: "1", ContextPath: "/x"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "crossId", verr.Field)

	managed := testutil.NewTestApi(t, testEnv)
	managed.CrossID = "echo-crd"
	require.NoError(t, f.store.CreateApi(ctx, managed))

	_, err = f.apis.ImportCRD(ctx, f.ec, crdInput(nil))
	assert.ErrorIs(t, err, ErrApiNotManagedByCRD)
}

func TestApiService_ImportCRDWithoutPrimaryOwnerRoleStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	noRoles := f.ec
	noRoles.OrganizationID = "org-without-roles"

	_, err := f.apis.ImportCRD(ctx, noRoles, crdInput(nil))
	require.True(t, IsNotFound(err), "got %v", err)

	_, total, err := f.apis.Search(ctx, f.ec, "", Page{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = f.apis.ImportCRD(ctx, f.ec, crdInput(nil))
	assert.NoError(t, err)
}

func TestApiService_ImportCRDKeepsStateWhenStalePlanIsSubscribed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	api, err := f.apis.ImportCRD(ctx, f.ec, crdInput(map[string]CreatePlanInput{
		"gold":   {Security: model.SecurityApiKey, Status: model.PlanPublished},
		"silver": {Security: model.SecurityApiKey, Status: model.PlanPublished},
	}))
	require.NoError(t, err)
	plans, err := f.plans.List(ctx, f.ec, api.ID)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	silver := plans[1]
	require.Equal(t, "silver", silver.Name)
	require.NoError(t, f.store.CreateSubscription(ctx, testutil.NewTestSubscription(t, silver, "app-1", model.SubscriptionAccepted)))
	auditCount := len(f.auditEvents())

	in := crdInput(map[string]CreatePlanInput{
		"gold":   {Security: model.SecurityApiKey, Status: model.PlanPublished, Description: "updated"},
		"bronze": {Security: model.SecurityJWT},
	})
	in.Name = "Echo v2"
	_, err = f.apis.ImportCRD(ctx, f.ec, in)
	require.ErrorIs(t, err, ErrPlanHasActiveSubscriptions)

	stored, err := f.apis.Get(ctx, f.ec, api.ID)
	require.NoError(t, err)
	assert.Equal(t, "Echo", stored.Name)

	plans, err = f.plans.List(ctx, f.ec, api.ID)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	for _, p := range plans {
		assert.NotEqual(t, "bronze", p.Name)
		assert.Empty(t, p.Description)
		assert.False(t, p.IsClosed())
	}
	assert.Len(t, f.auditEvents(), auditCount)
}

func TestStalePlans(t *testing.T) {
	gold := &model.Plan{ID: "p1", Name: "gold"}
	silver := &model.Plan{ID: "p2", Name: "silver", CrossID: "silver-x"}
	legacy := &model.Plan{ID: "p3", Name: "legacy"}
	open := []*model.Plan{gold, silver, legacy}

	stale := stalePlans(open, map[string]CreatePlanInput{
		"gold":    {},
		"renamed": {CrossID: "silver-x"},
		"bronze":  {},
	})
	require.Len(t, stale, 1)
	assert.Equal(t, "p3", stale[0].ID)

	assert.Len(t, stalePlans(open, nil), 3)
}

func TestApiService_KubernetesApisAreReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api, err := f.apis.ImportCRD(ctx, f.ec, crdInput(nil))
	require.NoError(t, err)

	_, err = f.apis.Update(ctx, f.ec, api.ID, UpdateApiInput{Name: "x", Version: "1"})
	assert.ErrorIs(t, err, ErrApiManagedByCRD)
	_, err = f.apis.Stop(ctx, f.ec, api.ID)
	assert.ErrorIs(t, err, ErrApiManagedByCRD)
	assert.ErrorIs(t, f.apis.Delete(ctx, f.ec, api.ID), ErrApiManagedByCRD)
}
