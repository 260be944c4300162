package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// PrimaryOwnerMode selects who becomes primary owner of a new API.
type PrimaryOwnerMode string

const (
	PrimaryOwnerModeUser  PrimaryOwnerMode = "USER"
	PrimaryOwnerModeGroup PrimaryOwnerMode = "GROUP"
)

// IsValid returns true if the mode is known.
func (m PrimaryOwnerMode) IsValid() bool {
	return m == PrimaryOwnerModeUser || m == PrimaryOwnerModeGroup
}

const defaultKeylessPlanName = "Default Keyless (UNSECURED)"

var contextPathPattern = regexp.MustCompile(`^/[A-Za-z0-9_\-./]*$`)

// ApiService handles API definitions and their deployment state.
type ApiService struct {
	store     repository.Store
	plans     *PlanService
	owners    *PrimaryOwnerDomainService
	members   *MembershipService
	audit     *AuditService
	publisher events.Publisher
	logger    *slog.Logger
	ownerMode PrimaryOwnerMode
}

// ApiServiceDeps groups the collaborators of ApiService.
type ApiServiceDeps struct {
	Store        repository.Store
	Plans        *PlanService
	Owners       *PrimaryOwnerDomainService
	Members      *MembershipService
	Audit        *AuditService
	Publisher    events.Publisher
	Logger       *slog.Logger
	PrimaryOwner PrimaryOwnerMode
}

// NewApiService creates a new ApiService.
func NewApiService(deps ApiServiceDeps) *ApiService {
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if !deps.PrimaryOwner.IsValid() {
		deps.PrimaryOwner = PrimaryOwnerModeUser
	}
	return &ApiService{
		store:     deps.Store,
		plans:     deps.Plans,
		owners:    deps.Owners,
		members:   deps.Members,
		audit:     deps.Audit,
		publisher: deps.Publisher,
		logger:    deps.Logger.With("component", "api_service"),
		ownerMode: deps.PrimaryOwner,
	}
}

// CreateApiInput defines input for creating an API.
type CreateApiInput struct {
	Name              string
	Version           string
	Description       string
	ContextPath       string
	DefinitionVersion model.DefinitionVersion
	Type              model.ApiType
	Tags              []string
	Labels            []string
	Categories        []string
	Groups            []string
	CreateKeylessPlan bool
}

// UpdateApiInput holds the mutable fields of an API.
type UpdateApiInput struct {
	Name                           string
	Version                        string
	Description                    string
	Visibility                     model.Visibility
	LifecycleState                 model.ApiLifecycleState
	Tags                           []string
	Labels                         []string
	Categories                     []string
	Groups                         []string
	Picture                        string
	DisableMembershipNotifications bool
}

// CRDMember is a membership declared in a Kubernetes resource.
type CRDMember struct {
	ID   string
	Type model.MemberType
	Role string
}

// ImportCRDInput is the desired state of an API declared in Kubernetes.
// Plans are keyed by name.
type ImportCRDInput struct {
	CrossID           string
	Name              string
	Version           string
	Description       string
	ContextPath       string
	DefinitionVersion model.DefinitionVersion
	Type              model.ApiType
	State             model.ApiState
	LifecycleState    model.ApiLifecycleState
	Visibility        model.Visibility
	Tags              []string
	Labels            []string
	Categories        []string
	Groups            []string
	Plans             map[string]CreatePlanInput
	Members           []CRDMember
}

// Create registers a new API. The caller, or one of the API groups when the
// primary owner mode is GROUP, becomes primary owner.
func (s *ApiService) Create(ctx context.Context, ec ExecutionContext, in CreateApiInput) (*model.Api, error) {
	if err := validateApiHeader(in.Name, in.Version); err != nil {
		return nil, err
	}
	contextPath, err := normalizeContextPath(in.ContextPath)
	if err != nil {
		return nil, err
	}
	owner, err := s.newApiOwner(ctx, ec, in.Groups)
	if err != nil {
		return nil, err
	}

	now := nowFunc()
	api := &model.Api{
		ID:                newID(),
		EnvironmentID:     ec.EnvironmentID,
		Name:              strings.TrimSpace(in.Name),
		Version:           strings.TrimSpace(in.Version),
		Description:       in.Description,
		DefinitionVersion: valueOr(in.DefinitionVersion, model.DefinitionV4),
		Type:              valueOr(in.Type, model.ApiTypeProxy),
		ContextPath:       contextPath,
		State:             model.ApiStateStopped,
		LifecycleState:    model.LifecycleCreated,
		Visibility:        model.VisibilityPrivate,
		Tags:              in.Tags,
		Labels:            in.Labels,
		Categories:        in.Categories,
		Groups:            in.Groups,
		DefinitionContext: model.DefinitionContext{Origin: model.OriginManagement, Mode: "FULLY_MANAGED", SyncFrom: "MANAGEMENT"},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.createOwnedApi(ctx, ec, api, owner); err != nil {
		return nil, err
	}
	if err := s.record(ctx, ec, model.EventApiCreated, nil, api); err != nil {
		return nil, err
	}

	if in.CreateKeylessPlan {
		_, err := s.plans.create(ctx, ec, api, CreatePlanInput{
			Name:     defaultKeylessPlanName,
			Security: model.SecurityKeyless,
			Status:   model.PlanPublished,
		})
		if err != nil {
			return nil, fmt.Errorf("create default plan: %w", err)
		}
	}
	return api, nil
}

// Get returns an API of the current environment.
func (s *ApiService) Get(ctx context.Context, ec ExecutionContext, apiID string) (*model.Api, error) {
	return findApi(ctx, s.store, ec, apiID)
}

// Search lists the APIs of the current environment whose name contains query.
func (s *ApiService) Search(ctx context.Context, ec ExecutionContext, query string, page Page) ([]*model.Api, int, error) {
	page = page.normalize()
	return s.store.ListApis(ctx, repository.ApiQuery{
		EnvironmentID: ec.EnvironmentID,
		Name:          strings.TrimSpace(query),
		Page:          page.Number,
		Size:          page.Size,
	})
}

// Update replaces the mutable fields of an API.
func (s *ApiService) Update(ctx context.Context, ec ExecutionContext, apiID string, in UpdateApiInput) (*model.Api, error) {
	api, err := s.getMutableApi(ctx, ec, apiID)
	if err != nil {
		return nil, err
	}
	if err := validateApiHeader(in.Name, in.Version); err != nil {
		return nil, err
	}
	if in.Visibility != "" && !in.Visibility.IsValid() {
		return nil, invalid("visibility", "unknown visibility %q", in.Visibility)
	}
	if in.LifecycleState != "" {
		if err := checkLifecycleTransition(api.LifecycleState, in.LifecycleState); err != nil {
			return nil, err
		}
	}

	before := *api
	api.Name = strings.TrimSpace(in.Name)
	api.Version = strings.TrimSpace(in.Version)
	api.Description = in.Description
	api.Visibility = valueOr(in.Visibility, api.Visibility)
	api.LifecycleState = valueOr(in.LifecycleState, api.LifecycleState)
	api.Tags = in.Tags
	api.Labels = in.Labels
	api.Categories = in.Categories
	api.Groups = in.Groups
	api.Picture = in.Picture
	api.DisableMembershipNotifications = in.DisableMembershipNotifications
	api.UpdatedAt = nowFunc()

	if err := s.store.UpdateApi(ctx, api); err != nil {
		return nil, fmt.Errorf("update api: %w", err)
	}
	if err := s.record(ctx, ec, model.EventApiUpdated, &before, api); err != nil {
		return nil, err
	}
	return api, nil
}

// Delete removes a stopped API with its plans and memberships. Published or
// deprecated plans must not hold active subscriptions.
func (s *ApiService) Delete(ctx context.Context, ec ExecutionContext, apiID string) error {
	api, err := findApi(ctx, s.store, ec, apiID)
	if err != nil {
		return err
	}
	if api.DefinitionContext.IsKubernetes() {
		return ErrApiManagedByCRD
	}
	if api.IsStarted() {
		return ErrApiRunning
	}

	plans, err := s.store.ListPlansByApi(ctx, api.ID)
	if err != nil {
		return err
	}
	for _, p := range plans {
		if p.Status != model.PlanPublished && p.Status != model.PlanDeprecated {
			continue
		}
		if err := s.plans.checkNoActiveSubscriptions(ctx, p.ID); err != nil {
			return err
		}
	}

	if err := s.store.DeleteApi(ctx, api.ID); err != nil {
		if errors.Is(err, repository.ErrApiNotFound) {
			return notFound(KindApi, apiID)
		}
		return fmt.Errorf("delete api: %w", err)
	}
	if err := s.store.DeleteMembershipsByReference(ctx, model.ReferenceAPI, api.ID); err != nil {
		return fmt.Errorf("delete api memberships: %w", err)
	}
	return s.record(ctx, ec, model.EventApiDeleted, api, nil)
}

// Start deploys a stopped API.
func (s *ApiService) Start(ctx context.Context, ec ExecutionContext, apiID string) (*model.Api, error) {
	return s.setState(ctx, ec, apiID, model.ApiStateStarted)
}

// Stop undeploys a started API.
func (s *ApiService) Stop(ctx context.Context, ec ExecutionContext, apiID string) (*model.Api, error) {
	return s.setState(ctx, ec, apiID, model.ApiStateStopped)
}

func (s *ApiService) setState(ctx context.Context, ec ExecutionContext, apiID string, state model.ApiState) (*model.Api, error) {
	api, err := s.getMutableApi(ctx, ec, apiID)
	if err != nil {
		return nil, err
	}
	if api.State == state {
		if state == model.ApiStateStarted {
			return nil, ErrApiAlreadyStarted
		}
		return nil, ErrApiAlreadyStopped
	}

	before := *api
	now := nowFunc()
	api.State = state
	api.UpdatedAt = now
	api.DeployedAt = &now

	if err := s.store.UpdateApi(ctx, api); err != nil {
		return nil, fmt.Errorf("update api state: %w", err)
	}

	event := model.EventApiStopped
	if state == model.ApiStateStarted {
		event = model.EventApiStarted
	}
	if err := s.record(ctx, ec, event, &before, api); err != nil {
		return nil, err
	}
	return api, nil
}

// ImportCRD creates or updates the API identified by the resource cross id
// and reconciles its plans. Plans absent from the resource are closed.
func (s *ApiService) ImportCRD(ctx context.Context, ec ExecutionContext, in ImportCRDInput) (*model.Api, error) {
	if strings.TrimSpace(in.CrossID) == "" {
		return nil, invalid("crossId", "cross id is required")
	}
	if err := validateApiHeader(in.Name, in.Version); err != nil {
		return nil, err
	}
	contextPath, err := normalizeContextPath(in.ContextPath)
	if err != nil {
		return nil, err
	}
	if in.State != "" && in.State != model.ApiStateStarted && in.State != model.ApiStateStopped {
		return nil, invalid("state", "unknown api state %q", in.State)
	}
	if in.LifecycleState != "" && !in.LifecycleState.IsValid() {
		return nil, invalid("lifecycleState", "unknown lifecycle state %q", in.LifecycleState)
	}
	if in.Visibility != "" && !in.Visibility.IsValid() {
		return nil, invalid("visibility", "unknown visibility %q", in.Visibility)
	}

	existing, err := s.store.GetApiByCrossID(ctx, ec.EnvironmentID, in.CrossID)
	if err != nil && !errors.Is(err, repository.ErrApiNotFound) {
		return nil, err
	}

	var (
		api    *model.Api
		before *model.Api
		now    = nowFunc()
	)
	if existing == nil {
		owner, err := s.owners.ResolveOwner(ctx, ec.UserID, model.MemberUser)
		if err != nil {
			return nil, err
		}
		api = &model.Api{
			ID:                newID(),
			CrossID:           in.CrossID,
			EnvironmentID:     ec.EnvironmentID,
			State:             model.ApiStateStopped,
			LifecycleState:    model.LifecycleCreated,
			Visibility:        model.VisibilityPrivate,
			DefinitionContext: model.DefinitionContext{Origin: model.OriginKubernetes, Mode: "FULLY_MANAGED", SyncFrom: "KUBERNETES"},
			CreatedAt:         now,
		}
		applyCRD(api, in, contextPath, now)
		if err := s.createOwnedApi(ctx, ec, api, owner); err != nil {
			return nil, err
		}
	} else {
		if !existing.DefinitionContext.IsKubernetes() {
			return nil, ErrApiNotManagedByCRD
		}
		if err := s.checkStalePlans(ctx, existing.ID, in.Plans); err != nil {
			return nil, err
		}
		snapshot := *existing
		before = &snapshot
		api = existing
		applyCRD(api, in, contextPath, now)
		if err := s.store.UpdateApi(ctx, api); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return nil, ErrContextPathConflict
			}
			return nil, fmt.Errorf("update api: %w", err)
		}
	}

	if err := s.reconcilePlans(ctx, ec, api, in.Plans); err != nil {
		return nil, err
	}
	if err := s.reconcileMembers(ctx, ec, api, in.Members); err != nil {
		return nil, err
	}
	if err := s.record(ctx, ec, model.EventApiImported, before, api); err != nil {
		return nil, err
	}
	return api, nil
}

// createOwnedApi stores a new API together with its primary owner
// membership. The role is looked up first so a missing role leaves nothing
// behind.
func (s *ApiService) createOwnedApi(ctx context.Context, ec ExecutionContext, api *model.Api, owner *model.PrimaryOwner) error {
	if _, err := s.owners.PrimaryOwnerRole(ctx, ec.OrganizationID, model.ReferenceAPI); err != nil {
		return err
	}
	if err := s.store.CreateApi(ctx, api); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return ErrContextPathConflict
		}
		return fmt.Errorf("create api: %w", err)
	}
	if err := s.owners.CreatePrimaryOwnerMembership(ctx, ec, model.ReferenceAPI, api.ID, owner); err != nil {
		if derr := s.store.DeleteApi(ctx, api.ID); derr != nil {
			s.logger.Warn("failed to remove api without primary owner", "api_id", api.ID, "error", derr)
		}
		return err
	}
	return nil
}

// checkStalePlans fails when a plan the import would close still has active
// subscriptions.
func (s *ApiService) checkStalePlans(ctx context.Context, apiID string, declared map[string]CreatePlanInput) error {
	current, err := s.store.ListPlansByApi(ctx, apiID)
	if err != nil {
		return err
	}
	open := slices.DeleteFunc(current, func(p *model.Plan) bool { return p.IsClosed() })
	for _, p := range stalePlans(open, declared) {
		if err := s.plans.checkNoActiveSubscriptions(ctx, p.ID); err != nil {
			return fmt.Errorf("close plan %q: %w", p.Name, err)
		}
	}
	return nil
}

func applyCRD(api *model.Api, in ImportCRDInput, contextPath string, now time.Time) {
	api.Name = strings.TrimSpace(in.Name)
	api.Version = strings.TrimSpace(in.Version)
	api.Description = in.Description
	api.ContextPath = contextPath
	api.DefinitionVersion = valueOr(in.DefinitionVersion, valueOr(api.DefinitionVersion, model.DefinitionV4))
	api.Type = valueOr(in.Type, valueOr(api.Type, model.ApiTypeProxy))
	api.LifecycleState = valueOr(in.LifecycleState, api.LifecycleState)
	api.Visibility = valueOr(in.Visibility, api.Visibility)
	api.Tags = in.Tags
	api.Labels = in.Labels
	api.Categories = in.Categories
	api.Groups = in.Groups
	api.UpdatedAt = now
	if in.State != "" && in.State != api.State {
		api.State = in.State
		api.DeployedAt = &now
	}
}

// reconcilePlans aligns the API plans with the declared ones. A declared
// plan matches an existing non-closed plan by cross id, then by name.
func (s *ApiService) reconcilePlans(ctx context.Context, ec ExecutionContext, api *model.Api, declared map[string]CreatePlanInput) error {
	current, err := s.store.ListPlansByApi(ctx, api.ID)
	if err != nil {
		return err
	}
	open := slices.DeleteFunc(current, func(p *model.Plan) bool { return p.IsClosed() })
	stale := stalePlans(open, declared)

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		in := declared[name]
		if in.Name == "" {
			in.Name = name
		}
		match := matchPlan(open, in)
		if match == nil {
			if _, err := s.plans.create(ctx, ec, api, in); err != nil {
				return fmt.Errorf("import plan %q: %w", name, err)
			}
			continue
		}

		plan, err := s.plans.update(ctx, ec, match, UpdatePlanInput{
			Name:               in.Name,
			Description:        in.Description,
			Security:           in.Security,
			SecurityDefinition: in.SecurityDefinition,
			SelectionRule:      in.SelectionRule,
			Validation:         in.Validation,
			Characteristics:    in.Characteristics,
			ExcludedGroups:     in.ExcludedGroups,
			Tags:               in.Tags,
			CommentRequired:    in.CommentRequired,
			CommentMessage:     in.CommentMessage,
			GeneralConditions:  in.GeneralConditions,
		})
		if err != nil {
			return fmt.Errorf("import plan %q: %w", name, err)
		}
		if in.Status == model.PlanPublished && plan.Status == model.PlanStaging {
			if _, err := s.plans.publish(ctx, ec, plan); err != nil {
				return fmt.Errorf("import plan %q: %w", name, err)
			}
		}
	}

	for _, p := range stale {
		if _, err := s.plans.close(ctx, ec, p); err != nil {
			return fmt.Errorf("close plan %q: %w", p.Name, err)
		}
	}
	return nil
}

// stalePlans returns the open plans no declared plan matches.
func stalePlans(open []*model.Plan, declared map[string]CreatePlanInput) []*model.Plan {
	matched := make(map[string]bool, len(declared))
	for name, in := range declared {
		if in.Name == "" {
			in.Name = name
		}
		if p := matchPlan(open, in); p != nil {
			matched[p.ID] = true
		}
	}
	var stale []*model.Plan
	for _, p := range open {
		if !matched[p.ID] {
			stale = append(stale, p)
		}
	}
	return stale
}

func matchPlan(plans []*model.Plan, in CreatePlanInput) *model.Plan {
	if in.CrossID != "" {
		for _, p := range plans {
			if p.CrossID == in.CrossID {
				return p
			}
		}
	}
	for _, p := range plans {
		if p.Name == in.Name {
			return p
		}
	}
	return nil
}

// reconcileMembers adds declared members that are missing. Existing
// memberships are left untouched.
func (s *ApiService) reconcileMembers(ctx context.Context, ec ExecutionContext, api *model.Api, members []CRDMember) error {
	if s.members == nil {
		return nil
	}
	for _, m := range members {
		memberType := valueOr(m.Type, model.MemberUser)
		role := valueOr(m.Role, model.RoleUser)
		_, err := s.members.AddMember(ctx, ec, model.ReferenceAPI, api.ID, m.ID, memberType, role)
		switch {
		case errors.Is(err, ErrMemberAlreadyExists):
		case IsNotFound(err):
			s.logger.Warn("skipping unknown crd member", "api_id", api.ID, "member_id", m.ID, "error", err)
		case err != nil:
			return fmt.Errorf("import member %s: %w", m.ID, err)
		}
	}
	return nil
}

// newApiOwner picks the primary owner of an API about to be created.
func (s *ApiService) newApiOwner(ctx context.Context, ec ExecutionContext, groups []string) (*model.PrimaryOwner, error) {
	if s.ownerMode == PrimaryOwnerModeUser {
		return s.owners.ResolveOwner(ctx, ec.UserID, model.MemberUser)
	}

	for _, groupID := range groups {
		group, err := s.store.GetGroup(ctx, groupID)
		if errors.Is(err, repository.ErrGroupNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if group.ApiPrimaryOwner != "" {
			return s.owners.groupOwner(ctx, group)
		}
	}
	return nil, invalid("groups", "a group with an api primary owner is required in %s primary owner mode", s.ownerMode)
}

func (s *ApiService) getMutableApi(ctx context.Context, ec ExecutionContext, apiID string) (*model.Api, error) {
	return s.plans.getMutableApi(ctx, ec, apiID)
}

func (s *ApiService) record(ctx context.Context, ec ExecutionContext, event string, before, after *model.Api) error {
	api := after
	if api == nil {
		api = before
	}

	in := AuditInput{
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   api.ID,
		Event:         event,
		Properties:    map[string]string{model.AuditPropertyApi: api.ID},
	}
	if before != nil {
		in.Before = before
	}
	if after != nil {
		in.After = after
	}
	if err := s.audit.Record(ctx, ec, in); err != nil {
		return err
	}

	publish(ctx, s.publisher, s.logger, events.Event{
		ID:            newID(),
		Type:          event,
		EnvironmentID: api.EnvironmentID,
		ApiID:         api.ID,
		ReferenceID:   api.ID,
		Actor:         ec.UserID,
		Properties:    map[string]string{"state": string(api.State), "lifecycleState": string(api.LifecycleState)},
		OccurredAt:    nowFunc(),
	})
	return nil
}

func validateApiHeader(name, version string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name", "api name is required")
	}
	if strings.TrimSpace(version) == "" {
		return invalid("apiVersion", "api version is required")
	}
	return nil
}

// normalizeContextPath trims the trailing slash and rejects malformed paths.
func normalizeContextPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", invalid("contextPath", "context path is required")
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !contextPathPattern.MatchString(path) || strings.Contains(path, "//") {
		return "", invalid("contextPath", "context path %q is invalid", path)
	}
	return path, nil
}

// checkLifecycleTransition enforces that ARCHIVED is terminal, DEPRECATED can
// only be archived and CREATED cannot be re-entered.
func checkLifecycleTransition(from, to model.ApiLifecycleState) error {
	if !to.IsValid() {
		return invalid("lifecycleState", "unknown lifecycle state %q", to)
	}
	if from == to {
		return nil
	}
	switch {
	case from == model.LifecycleArchived:
		return ErrApiArchived
	case from == model.LifecycleDeprecated && to != model.LifecycleArchived:
		return invalid("lifecycleState", "a deprecated api can only be archived")
	case to == model.LifecycleCreated:
		return invalid("lifecycleState", "an api cannot go back to %s", model.LifecycleCreated)
	}
	return nil
}

func valueOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
