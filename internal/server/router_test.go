package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apimplane/apim/internal/audit"
	"github.com/apimplane/apim/internal/handler"
	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/metrics"
	"github.com/apimplane/apim/internal/middleware"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository/memory"
	"github.com/apimplane/apim/internal/service"
)

const (
	routerOrg  = "DEFAULT"
	routerUser = "user-1"
	apisPath   = "/management/v2/environments/DEFAULT/apis"
)

type routerFixture struct {
	router     http.Handler
	readToken  string
	adminToken string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	recorder := metrics.NewInMemory()
	ctx := context.Background()

	for _, name := range []string{model.RolePrimaryOwner, model.RoleOwner, model.RoleUser} {
		require.NoError(t, store.CreateRole(ctx, &model.Role{
			ID:             "API_" + name,
			OrganizationID: routerOrg,
			Scope:          model.ReferenceAPI,
			Name:           name,
			System:         true,
		}))
	}
	require.NoError(t, store.CreateUser(ctx, &model.User{
		ID: routerUser, OrganizationID: routerOrg, Firstname: "John", Lastname: "Doe", Email: "john.doe@example.com",
	}))

	auditSvc := service.NewAuditService(audit.NewMemoryStore(), recorder, logger)
	owners := service.NewPrimaryOwnerDomainService(store, auditSvc)
	members := service.NewMembershipService(store, owners, auditSvc)
	plans := service.NewPlanService(store, auditSvc, nil, logger)
	subs := service.NewSubscriptionService(store, auditSvc, nil, logger)
	apis := service.NewApiService(service.ApiServiceDeps{
		Store: store, Plans: plans, Owners: owners, Members: members, Audit: auditSvc, Logger: logger,
	})
	tokens := service.NewTokenService(store, logger)

	ec := service.ExecutionContext{OrganizationID: routerOrg, UserID: routerUser}
	read, err := tokens.Create(ctx, ec, service.CreateTokenInput{Name: "reader", Scopes: []string{model.ScopeRead}})
	require.NoError(t, err)
	admin, err := tokens.Create(ctx, ec, service.CreateTokenInput{Name: "admin", Scopes: []string{model.ScopeAdmin}})
	require.NoError(t, err)

	router := NewRouter(Handlers{
		Health:        handler.NewHealthHandler(nil, nil, nil),
		Metrics:       handler.NewMetricsHandler(nil, recorder),
		Apis:          handler.NewApiHandler(apis, owners, logger),
		Plans:         handler.NewPlanHandler(plans, logger),
		Subscriptions: handler.NewSubscriptionHandler(subs, logger),
		Members:       handler.NewMemberHandler(apis, members, owners, logger),
		Audits:        handler.NewAuditHandler(apis, auditSvc, logger),
		Tokens:        handler.NewTokenHandler(tokens, logger),
		Portal: handler.NewPortalHandler(service.NewPortalService(store, owners), nil, handler.PortalConfig{
			OrganizationID: routerOrg,
			BaseURL:        "https://apim.example.com",
		}, logger),
		Admin: handler.NewAdminHandler(handler.AdminDeps{Tokens: store, Version: "test"}, logger),
	}, RouterConfig{
		Logger:   logger,
		Recorder: recorder,
		Auth:     middleware.AuthConfig{Tokens: store},
		CORS:     middleware.DefaultCORSConfig(),
		Security: middleware.SecurityConfig{IsDevelopment: true, MaxRequestBodySize: 1 << 20},
	})

	return &routerFixture{router: router, readToken: read.Plaintext, adminToken: admin.Plaintext}
}

func (f *routerFixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), rec.Body.String())
	return resp.Error.Code
}

func TestRouter_PublicEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = f.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/portal/environments/DEFAULT/apis", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "apim_http_request_duration_seconds_count")
}

func TestRouter_ManagementRequiresToken(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, apisPath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = f.do(http.MethodGet, apisPath, "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_ScopesAreEnforced(t *testing.T) {
	f := newRouterFixture(t)
	newApi := dto.NewApiEntity{Name: "Petstore", ApiVersion: "1.0", ContextPath: "/petstore"}

	rec := f.do(http.MethodGet, apisPath, f.readToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, apisPath, f.readToken, newApi)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = f.do(http.MethodPost, apisPath, f.adminToken, newApi)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var api dto.ApiEntity
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&api))

	rec = f.do(http.MethodDelete, apisPath+"/"+api.ID, f.readToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, apisPath+"/"+api.ID+"/plans", f.readToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/management/v2/admin/stats", f.readToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/management/v2/admin/stats", f.adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RejectsInvalidPathParams(t *testing.T) {
	f := newRouterFixture(t)
	longID := strings.Repeat("a", middleware.MaxIDLength+1)

	for _, path := range []string{
		apisPath + "/" + longID,
		apisPath + "/api-1/plans/" + longID,
		"/portal/environments/DEFAULT/apis/" + longID,
	} {
		token := f.readToken
		if strings.HasPrefix(path, "/portal") {
			token = ""
		}
		rec := f.do(http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "INVALID_PARAMETER", errorCode(t, rec), path)
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = f.do(http.MethodDelete, "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
