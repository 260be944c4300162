package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apimplane/apim/internal/audit"
	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/metrics"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository/memory"
	"github.com/apimplane/apim/internal/testutil"
)

const (
	testOrg  = "DEFAULT"
	testEnv  = "DEFAULT"
	testUser = "user-1"
)

// fixture wires every service on top of the in-memory store.
type fixture struct {
	store     *memory.Store
	audits    *audit.MemoryStore
	metrics   *metrics.InMemoryRecorder
	publisher *events.RecordingPublisher

	audit   *AuditService
	owners  *PrimaryOwnerDomainService
	members *MembershipService
	plans   *PlanService
	subs    *SubscriptionService
	apis    *ApiService
	tokens  *TokenService
	portal  *PortalService

	ec ExecutionContext
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithMode(t, PrimaryOwnerModeUser)
}

func newFixtureWithMode(t *testing.T, mode PrimaryOwnerMode) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		store:     memory.New(),
		audits:    audit.NewMemoryStore(),
		metrics:   metrics.NewInMemory(),
		publisher: &events.RecordingPublisher{},
		ec:        ExecutionContext{OrganizationID: testOrg, EnvironmentID: testEnv, UserID: testUser},
	}
	f.audit = NewAuditService(f.audits, f.metrics, logger)
	f.owners = NewPrimaryOwnerDomainService(f.store, f.audit)
	f.members = NewMembershipService(f.store, f.owners, f.audit)
	f.plans = NewPlanService(f.store, f.audit, f.publisher, logger)
	f.subs = NewSubscriptionService(f.store, f.audit, f.publisher, logger)
	f.apis = NewApiService(ApiServiceDeps{
		Store:        f.store,
		Plans:        f.plans,
		Owners:       f.owners,
		Members:      f.members,
		Audit:        f.audit,
		Publisher:    f.publisher,
		Logger:       logger,
		PrimaryOwner: mode,
	})
	f.tokens = NewTokenService(f.store, logger)
	f.portal = NewPortalService(f.store, f.owners)

	ctx := context.Background()
	for _, scope := range []model.RoleScope{model.ReferenceAPI, model.ReferenceApplication, model.ReferenceIntegration} {
		for _, name := range []string{model.RolePrimaryOwner, model.RoleOwner, model.RoleUser} {
			require.NoError(t, f.store.CreateRole(ctx, &model.Role{
				ID:             string(scope) + "_" + name,
				OrganizationID: testOrg,
				Scope:          scope,
				Name:           name,
				System:         true,
			}))
		}
	}
	f.addUser(t, testUser, "John", "Doe", "john.doe@example.com")
	return f
}

func (f *fixture) addUser(t *testing.T, id, first, last, email string) *model.User {
	t.Helper()
	user := &model.User{ID: id, OrganizationID: testOrg, Firstname: first, Lastname: last, Email: email}
	require.NoError(t, f.store.CreateUser(context.Background(), user))
	return user
}

func (f *fixture) addGroup(t *testing.T, id, name, apiPrimaryOwner string) *model.Group {
	t.Helper()
	group := &model.Group{ID: id, EnvironmentID: testEnv, Name: name, ApiPrimaryOwner: apiPrimaryOwner}
	require.NoError(t, f.store.CreateGroup(context.Background(), group))
	return group
}

func (f *fixture) addApplication(t *testing.T, id string) *model.Application {
	t.Helper()
	app := &model.Application{ID: id, EnvironmentID: testEnv, Name: "App " + id, Status: model.ApplicationActive}
	require.NoError(t, f.store.CreateApplication(context.Background(), app))
	return app
}

// addApi stores an API owned by the test user without going through ApiService.
func (f *fixture) addApi(t *testing.T) *model.Api {
	t.Helper()
	ctx := context.Background()
	api := testutil.NewTestApi(t, testEnv)
	require.NoError(t, f.store.CreateApi(ctx, api))
	require.NoError(t, f.store.CreateMembership(ctx, &model.Membership{
		ID:            testutil.UniqueID("membership"),
		MemberID:      testUser,
		MemberType:    model.MemberUser,
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   api.ID,
		RoleID:        "API_" + model.RolePrimaryOwner,
	}))
	return api
}

// addPlan creates a plan through PlanService in the requested status.
func (f *fixture) addPlan(t *testing.T, api *model.Api, name string, security model.PlanSecurity, status model.PlanStatus) *model.Plan {
	t.Helper()
	ctx := context.Background()
	plan, err := f.plans.Create(ctx, f.ec, api.ID, CreatePlanInput{Name: name, Security: security})
	require.NoError(t, err)

	switch status {
	case model.PlanPublished:
		plan, err = f.plans.Publish(ctx, f.ec, api.ID, plan.ID)
	case model.PlanDeprecated:
		plan, err = f.plans.Deprecate(ctx, f.ec, api.ID, plan.ID, true)
	case model.PlanClosed:
		plan, err = f.plans.Close(ctx, f.ec, api.ID, plan.ID)
	}
	require.NoError(t, err)
	return plan
}

func (f *fixture) auditEvents() []string {
	var names []string
	for _, e := range f.audits.All() {
		names = append(names, e.Event)
	}
	return names
}

// freezeTime pins nowFunc for the duration of the test.
func freezeTime(t *testing.T, now time.Time) {
	t.Helper()
	previous := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = previous })
}
