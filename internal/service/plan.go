package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// PlanService handles the plan lifecycle of an API.
type PlanService struct {
	store     repository.Store
	audit     *AuditService
	publisher events.Publisher
	logger    *slog.Logger
}

// NewPlanService creates a new PlanService.
func NewPlanService(store repository.Store, auditService *AuditService, publisher events.Publisher, logger *slog.Logger) *PlanService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanService{
		store:     store,
		audit:     auditService,
		publisher: publisher,
		logger:    logger.With("component", "plan_service"),
	}
}

// CreatePlanInput defines input for creating a plan.
type CreatePlanInput struct {
	CrossID            string
	Name               string
	Description        string
	Security           model.PlanSecurity
	SecurityDefinition string
	SelectionRule      string
	Status             model.PlanStatus
	Validation         model.PlanValidation
	Mode               model.PlanMode
	Characteristics    []string
	ExcludedGroups     []string
	Tags               []string
	CommentRequired    bool
	CommentMessage     string
	GeneralConditions  string
}

// UpdatePlanInput holds the mutable fields of a plan. Security is only
// compared against the stored value.
type UpdatePlanInput struct {
	Name               string
	Description        string
	Security           model.PlanSecurity
	SecurityDefinition string
	SelectionRule      string
	Validation         model.PlanValidation
	Characteristics    []string
	ExcludedGroups     []string
	Tags               []string
	CommentRequired    bool
	CommentMessage     string
	GeneralConditions  string
}

// List returns the plans of an API ordered by position. Closed plans are
// included only when statuses asks for them.
func (s *PlanService) List(ctx context.Context, ec ExecutionContext, apiID string, statuses ...model.PlanStatus) ([]*model.Plan, error) {
	if _, err := s.getApi(ctx, ec, apiID); err != nil {
		return nil, err
	}
	plans, err := s.store.ListPlansByApi(ctx, apiID)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return plans, nil
	}
	filtered := plans[:0]
	for _, p := range plans {
		if slices.Contains(statuses, p.Status) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// Get returns a plan of an API.
func (s *PlanService) Get(ctx context.Context, ec ExecutionContext, apiID, planID string) (*model.Plan, error) {
	if _, err := s.getApi(ctx, ec, apiID); err != nil {
		return nil, err
	}
	return s.getPlan(ctx, apiID, planID)
}

// Create adds a plan at the end of the API's plan list.
func (s *PlanService) Create(ctx context.Context, ec ExecutionContext, apiID string, in CreatePlanInput) (*model.Plan, error) {
	api, err := s.getMutableApi(ctx, ec, apiID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, ec, api, in)
}

func (s *PlanService) create(ctx context.Context, ec ExecutionContext, api *model.Api, in CreatePlanInput) (*model.Plan, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name", "plan name is required")
	}
	if !in.Security.IsValid() {
		return nil, invalid("security", "unknown plan security %q", in.Security)
	}
	status := in.Status
	if status == "" {
		status = model.PlanStaging
	}
	if status != model.PlanStaging && status != model.PlanPublished {
		return nil, invalid("status", "a plan can only be created as %s or %s", model.PlanStaging, model.PlanPublished)
	}
	validation := in.Validation
	if validation == "" {
		validation = model.ValidationAuto
	}
	mode := in.Mode
	if mode == "" {
		mode = model.PlanModeStandard
	}
	if mode == model.PlanModePush && in.Security != model.SecurityKeyless {
		// Push plans carry no entrypoint security.
		return nil, invalid("security", "push plans cannot define a security type")
	}

	plans, err := s.store.ListPlansByApi(ctx, api.ID)
	if err != nil {
		return nil, err
	}

	now := nowFunc()
	plan := &model.Plan{
		ID:                 newID(),
		CrossID:            in.CrossID,
		ApiID:              api.ID,
		Name:               strings.TrimSpace(in.Name),
		Description:        in.Description,
		Security:           in.Security,
		SecurityDefinition: in.SecurityDefinition,
		SelectionRule:      in.SelectionRule,
		Status:             status,
		Validation:         validation,
		Mode:               mode,
		Order:              nextOrder(plans),
		Characteristics:    in.Characteristics,
		ExcludedGroups:     in.ExcludedGroups,
		Tags:               in.Tags,
		CommentRequired:    in.CommentRequired,
		CommentMessage:     in.CommentMessage,
		GeneralConditions:  in.GeneralConditions,
		CreatedAt:          now,
		UpdatedAt:          now,
		NeedRedeployAt:     &now,
	}
	if status == model.PlanPublished {
		if err := checkKeylessConflict(plans, plan); err != nil {
			return nil, err
		}
		plan.PublishedAt = &now
	}

	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	if err := s.recordPlan(ctx, ec, model.EventPlanCreated, nil, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Update replaces the mutable fields of a plan.
func (s *PlanService) Update(ctx context.Context, ec ExecutionContext, apiID, planID string, in UpdatePlanInput) (*model.Plan, error) {
	if _, err := s.getMutableApi(ctx, ec, apiID); err != nil {
		return nil, err
	}
	plan, err := s.getPlan(ctx, apiID, planID)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, ec, plan, in)
}

func (s *PlanService) update(ctx context.Context, ec ExecutionContext, plan *model.Plan, in UpdatePlanInput) (*model.Plan, error) {
	if plan.IsClosed() {
		return nil, ErrPlanAlreadyClosed
	}
	if in.Security != "" && in.Security != plan.Security {
		return nil, ErrPlanSecurityImmutable
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name", "plan name is required")
	}
	if in.Validation != "" && in.Validation != model.ValidationAuto && in.Validation != model.ValidationManual {
		return nil, invalid("validation", "unknown plan validation %q", in.Validation)
	}

	before := *plan
	now := nowFunc()

	redeploy := plan.SecurityDefinition != in.SecurityDefinition ||
		plan.SelectionRule != in.SelectionRule ||
		!slices.Equal(plan.Tags, in.Tags) ||
		!slices.Equal(plan.ExcludedGroups, in.ExcludedGroups)

	plan.Name = strings.TrimSpace(in.Name)
	plan.Description = in.Description
	plan.SecurityDefinition = in.SecurityDefinition
	plan.SelectionRule = in.SelectionRule
	if in.Validation != "" {
		plan.Validation = in.Validation
	}
	plan.Characteristics = in.Characteristics
	plan.ExcludedGroups = in.ExcludedGroups
	plan.Tags = in.Tags
	plan.CommentRequired = in.CommentRequired
	plan.CommentMessage = in.CommentMessage
	plan.GeneralConditions = in.GeneralConditions
	plan.UpdatedAt = now
	if redeploy {
		plan.NeedRedeployAt = &now
	}

	if err := s.store.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	if err := s.recordPlan(ctx, ec, model.EventPlanUpdated, &before, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Publish moves a staging plan to PUBLISHED.
func (s *PlanService) Publish(ctx context.Context, ec ExecutionContext, apiID, planID string) (*model.Plan, error) {
	if _, err := s.getMutableApi(ctx, ec, apiID); err != nil {
		return nil, err
	}
	plan, err := s.getPlan(ctx, apiID, planID)
	if err != nil {
		return nil, err
	}
	return s.publish(ctx, ec, plan)
}

func (s *PlanService) publish(ctx context.Context, ec ExecutionContext, plan *model.Plan) (*model.Plan, error) {
	switch plan.Status {
	case model.PlanClosed:
		return nil, ErrPlanAlreadyClosed
	case model.PlanPublished, model.PlanDeprecated:
		return nil, ErrPlanAlreadyPublished
	}

	plans, err := s.store.ListPlansByApi(ctx, plan.ApiID)
	if err != nil {
		return nil, err
	}
	if err := checkKeylessConflict(plans, plan); err != nil {
		return nil, err
	}

	before := *plan
	now := nowFunc()
	plan.Status = model.PlanPublished
	plan.PublishedAt = &now
	plan.UpdatedAt = now
	plan.NeedRedeployAt = &now

	if err := s.store.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("publish plan: %w", err)
	}
	if err := s.recordPlan(ctx, ec, model.EventPlanPublished, &before, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Deprecate stops new subscriptions on a published plan. allowStaging lets
// a staging plan be deprecated directly.
func (s *PlanService) Deprecate(ctx context.Context, ec ExecutionContext, apiID, planID string, allowStaging bool) (*model.Plan, error) {
	if _, err := s.getMutableApi(ctx, ec, apiID); err != nil {
		return nil, err
	}
	plan, err := s.getPlan(ctx, apiID, planID)
	if err != nil {
		return nil, err
	}

	switch plan.Status {
	case model.PlanClosed:
		return nil, ErrPlanAlreadyClosed
	case model.PlanDeprecated:
		return nil, ErrPlanAlreadyDeprecated
	case model.PlanStaging:
		if !allowStaging {
			return nil, ErrPlanNotYetPublished
		}
	}

	before := *plan
	now := nowFunc()
	plan.Status = model.PlanDeprecated
	plan.UpdatedAt = now
	plan.NeedRedeployAt = &now

	if err := s.store.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("deprecate plan: %w", err)
	}
	if err := s.recordPlan(ctx, ec, model.EventPlanDeprecated, &before, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Close closes a plan that no longer has active subscriptions and compacts
// the order of the remaining plans.
func (s *PlanService) Close(ctx context.Context, ec ExecutionContext, apiID, planID string) (*model.Plan, error) {
	if _, err := s.getMutableApi(ctx, ec, apiID); err != nil {
		return nil, err
	}
	plan, err := s.getPlan(ctx, apiID, planID)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, ec, plan)
}

func (s *PlanService) close(ctx context.Context, ec ExecutionContext, plan *model.Plan) (*model.Plan, error) {
	if plan.IsClosed() {
		return nil, ErrPlanAlreadyClosed
	}
	if err := s.checkNoActiveSubscriptions(ctx, plan.ID); err != nil {
		return nil, err
	}

	before := *plan
	now := nowFunc()
	plan.Status = model.PlanClosed
	plan.ClosedAt = &now
	plan.UpdatedAt = now
	plan.NeedRedeployAt = &now

	if err := s.store.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("close plan: %w", err)
	}
	if err := s.recordPlan(ctx, ec, model.EventPlanClosed, &before, plan); err != nil {
		return nil, err
	}
	if err := s.compactOrder(ctx, plan.ApiID); err != nil {
		return nil, err
	}
	return plan, nil
}

// Delete removes a plan without active subscriptions.
func (s *PlanService) Delete(ctx context.Context, ec ExecutionContext, apiID, planID string) error {
	if _, err := s.getMutableApi(ctx, ec, apiID); err != nil {
		return err
	}
	plan, err := s.getPlan(ctx, apiID, planID)
	if err != nil {
		return err
	}
	if err := s.checkNoActiveSubscriptions(ctx, plan.ID); err != nil {
		return err
	}

	if err := s.store.DeletePlan(ctx, plan.ID); err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return notFound(KindPlan, planID)
		}
		return fmt.Errorf("delete plan: %w", err)
	}
	if err := s.recordPlan(ctx, ec, model.EventPlanDeleted, plan, nil); err != nil {
		return err
	}
	return s.compactOrder(ctx, apiID)
}

// Reorder moves a plan to a 1-based position among the API's non-closed
// plans and renumbers them contiguously.
func (s *PlanService) Reorder(ctx context.Context, ec ExecutionContext, apiID, planID string, position int) (*model.Plan, error) {
	if _, err := s.getMutableApi(ctx, ec, apiID); err != nil {
		return nil, err
	}
	if position < 1 {
		return nil, invalid("order", "order must be greater than 0")
	}
	plan, err := s.getPlan(ctx, apiID, planID)
	if err != nil {
		return nil, err
	}
	if plan.IsClosed() {
		return nil, ErrPlanAlreadyClosed
	}

	plans, err := s.store.ListPlansByApi(ctx, apiID)
	if err != nil {
		return nil, err
	}
	open := make([]*model.Plan, 0, len(plans))
	for _, p := range plans {
		if !p.IsClosed() && p.ID != plan.ID {
			open = append(open, p)
		}
	}
	idx := min(position, len(open)+1) - 1
	open = slices.Insert(open, idx, plan)

	before := *plan
	var moved *model.Plan
	for i, p := range open {
		if p.ID == plan.ID {
			moved = p
		}
		if p.Order == i+1 {
			continue
		}
		p.Order = i + 1
		p.UpdatedAt = nowFunc()
		if err := s.store.UpdatePlan(ctx, p); err != nil {
			return nil, fmt.Errorf("reorder plan %s: %w", p.ID, err)
		}
	}

	if err := s.recordPlan(ctx, ec, model.EventPlanUpdated, &before, moved); err != nil {
		return nil, err
	}
	return moved, nil
}

// compactOrder renumbers the non-closed plans of an API 1..n keeping their
// relative order.
func (s *PlanService) compactOrder(ctx context.Context, apiID string) error {
	plans, err := s.store.ListPlansByApi(ctx, apiID)
	if err != nil {
		return err
	}
	open := plans[:0]
	for _, p := range plans {
		if !p.IsClosed() {
			open = append(open, p)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Order < open[j].Order })

	for i, p := range open {
		if p.Order == i+1 {
			continue
		}
		p.Order = i + 1
		if err := s.store.UpdatePlan(ctx, p); err != nil {
			return fmt.Errorf("reorder plan %s: %w", p.ID, err)
		}
	}
	return nil
}

func (s *PlanService) checkNoActiveSubscriptions(ctx context.Context, planID string) error {
	subs, err := s.store.ListSubscriptions(ctx, repository.SubscriptionQuery{
		PlanIDs:  []string{planID},
		Statuses: model.ActiveSubscriptionStatuses,
	})
	if err != nil {
		return err
	}
	if len(subs) > 0 {
		return ErrPlanHasActiveSubscriptions
	}
	return nil
}

func (s *PlanService) getApi(ctx context.Context, ec ExecutionContext, apiID string) (*model.Api, error) {
	return findApi(ctx, s.store, ec, apiID)
}

// getMutableApi rejects changes to APIs owned by a Kubernetes operator.
func (s *PlanService) getMutableApi(ctx context.Context, ec ExecutionContext, apiID string) (*model.Api, error) {
	api, err := s.getApi(ctx, ec, apiID)
	if err != nil {
		return nil, err
	}
	if api.DefinitionContext.IsKubernetes() {
		return nil, ErrApiManagedByCRD
	}
	if api.IsArchived() {
		return nil, ErrApiArchived
	}
	return api, nil
}

func (s *PlanService) getPlan(ctx context.Context, apiID, planID string) (*model.Plan, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if errors.Is(err, repository.ErrPlanNotFound) {
		return nil, notFound(KindPlan, planID)
	}
	if err != nil {
		return nil, err
	}
	if plan.ApiID != apiID {
		return nil, notFound(KindPlan, planID)
	}
	return plan, nil
}

func (s *PlanService) recordPlan(ctx context.Context, ec ExecutionContext, event string, before, after *model.Plan) error {
	plan := after
	if plan == nil {
		plan = before
	}

	in := AuditInput{
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   plan.ApiID,
		Event:         event,
		Properties:    map[string]string{model.AuditPropertyPlan: plan.ID},
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
		EnvironmentID: ec.EnvironmentID,
		ApiID:         plan.ApiID,
		ReferenceID:   plan.ID,
		Actor:         ec.UserID,
		OccurredAt:    nowFunc(),
	})
	return nil
}

// checkKeylessConflict rejects publishing a keyless plan next to another
// published keyless plan of the same API.
func checkKeylessConflict(plans []*model.Plan, candidate *model.Plan) error {
	if !candidate.IsKeyless() {
		return nil
	}
	for _, p := range plans {
		if p.ID != candidate.ID && p.IsKeyless() && p.IsPublished() {
			return ErrKeylessPlanAlreadyPublished
		}
	}
	return nil
}

func nextOrder(plans []*model.Plan) int {
	highest := 0
	for _, p := range plans {
		if !p.IsClosed() && p.Order > highest {
			highest = p.Order
		}
	}
	return highest + 1
}

// findApi loads an API and hides APIs of other environments.
func findApi(ctx context.Context, store repository.ApiStore, ec ExecutionContext, apiID string) (*model.Api, error) {
	api, err := store.GetApi(ctx, apiID)
	if errors.Is(err, repository.ErrApiNotFound) {
		return nil, notFound(KindApi, apiID)
	}
	if err != nil {
		return nil, err
	}
	if ec.EnvironmentID != "" && api.EnvironmentID != ec.EnvironmentID {
		return nil, notFound(KindApi, apiID)
	}
	return api, nil
}

// publish emits a domain event. Delivery failures are logged and never fail
// the operation that produced the event.
func publish(ctx context.Context, publisher events.Publisher, logger *slog.Logger, event events.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("event publish failed", "type", event.Type, "api_id", event.ApiID, "error", err)
	}
}
