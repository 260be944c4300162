package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/apimplane/apim/internal/auth"
	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// SystemUser is the actor recorded for background operations.
const SystemUser = "system"

// SubscriptionService handles application subscriptions to plans.
type SubscriptionService struct {
	store     repository.Store
	audit     *AuditService
	publisher events.Publisher
	logger    *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(store repository.Store, auditService *AuditService, publisher events.Publisher, logger *slog.Logger) *SubscriptionService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionService{
		store:     store,
		audit:     auditService,
		publisher: publisher,
		logger:    logger.With("component", "subscription_service"),
	}
}

// CreateSubscriptionInput defines input for subscribing an application.
type CreateSubscriptionInput struct {
	PlanID         string
	ApplicationID  string
	RequestMessage string
	StartingAt     *time.Time
	EndingAt       *time.Time
}

// SubscriptionFilter narrows List.
type SubscriptionFilter struct {
	ApplicationID string
	PlanIDs       []string
	Statuses      []model.SubscriptionStatus
}

// Create subscribes an application to a published plan. Plans with AUTO
// validation accept the subscription immediately and, for API_KEY plans,
// issue the consumer key.
func (s *SubscriptionService) Create(ctx context.Context, ec ExecutionContext, apiID string, in CreateSubscriptionInput) (*model.Subscription, *model.ApiKey, error) {
	if _, err := findApi(ctx, s.store, ec, apiID); err != nil {
		return nil, nil, err
	}

	plan, err := s.store.GetPlan(ctx, in.PlanID)
	if errors.Is(err, repository.ErrPlanNotFound) || (err == nil && plan.ApiID != apiID) {
		return nil, nil, notFound(KindPlan, in.PlanID)
	}
	if err != nil {
		return nil, nil, err
	}
	if !plan.IsSubscribable() {
		return nil, nil, ErrPlanNotSubscribable
	}
	if plan.CommentRequired && strings.TrimSpace(in.RequestMessage) == "" {
		return nil, nil, invalid("requestMessage", "plan requires a subscription comment")
	}
	if in.StartingAt != nil && in.EndingAt != nil && !in.EndingAt.After(*in.StartingAt) {
		return nil, nil, invalid("endingAt", "ending date must be after starting date")
	}

	app, err := s.store.GetApplication(ctx, in.ApplicationID)
	if errors.Is(err, repository.ErrApplicationNotFound) {
		return nil, nil, notFound(KindApplication, in.ApplicationID)
	}
	if err != nil {
		return nil, nil, err
	}
	if app.Status == model.ApplicationArchived {
		return nil, nil, ErrApplicationArchived
	}
	if slices.ContainsFunc(plan.ExcludedGroups, app.HasGroup) {
		return nil, nil, ErrPlanNotSubscribable
	}

	existing, err := s.store.ListSubscriptions(ctx, repository.SubscriptionQuery{
		PlanIDs:       []string{plan.ID},
		ApplicationID: app.ID,
		Statuses:      model.ActiveSubscriptionStatuses,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(existing) > 0 {
		return nil, nil, ErrSubscriptionAlreadyExists
	}

	now := nowFunc()
	sub := &model.Subscription{
		ID:             newID(),
		ApiID:          apiID,
		PlanID:         plan.ID,
		ApplicationID:  app.ID,
		SubscribedBy:   ec.UserID,
		Status:         model.SubscriptionPending,
		RequestMessage: in.RequestMessage,
		StartingAt:     in.StartingAt,
		EndingAt:       in.EndingAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	autoAccept := plan.Validation == model.ValidationAuto
	if autoAccept {
		accept(sub, ec.UserID, now)
	}

	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, nil, fmt.Errorf("create subscription: %w", err)
	}
	if err := s.record(ctx, ec, model.EventSubscriptionCreated, nil, sub); err != nil {
		return nil, nil, err
	}

	var key *model.ApiKey
	if autoAccept && plan.Security == model.SecurityApiKey {
		key, err = s.issueApiKey(ctx, ec, sub)
		if err != nil {
			return nil, nil, err
		}
	}
	return sub, key, nil
}

// Get returns a subscription of an API.
func (s *SubscriptionService) Get(ctx context.Context, ec ExecutionContext, apiID, subscriptionID string) (*model.Subscription, error) {
	if _, err := findApi(ctx, s.store, ec, apiID); err != nil {
		return nil, err
	}
	return s.getSubscription(ctx, apiID, subscriptionID)
}

// List returns the subscriptions of an API, newest first.
func (s *SubscriptionService) List(ctx context.Context, ec ExecutionContext, apiID string, filter SubscriptionFilter) ([]*model.Subscription, error) {
	if _, err := findApi(ctx, s.store, ec, apiID); err != nil {
		return nil, err
	}
	return s.store.ListSubscriptions(ctx, repository.SubscriptionQuery{
		ApiID:         apiID,
		PlanIDs:       filter.PlanIDs,
		ApplicationID: filter.ApplicationID,
		Statuses:      filter.Statuses,
	})
}

// ListApiKeys returns the consumer keys of a subscription.
func (s *SubscriptionService) ListApiKeys(ctx context.Context, ec ExecutionContext, apiID, subscriptionID string) ([]*model.ApiKey, error) {
	if _, err := s.Get(ctx, ec, apiID, subscriptionID); err != nil {
		return nil, err
	}
	return s.store.ListApiKeysBySubscription(ctx, subscriptionID)
}

// Accept validates a pending subscription.
func (s *SubscriptionService) Accept(ctx context.Context, ec ExecutionContext, apiID, subscriptionID, reason string) (*model.Subscription, error) {
	sub, err := s.Get(ctx, ec, apiID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionPending {
		return nil, ErrSubscriptionNotPending
	}
	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load subscription plan: %w", err)
	}

	before := *sub
	accept(sub, ec.UserID, nowFunc())
	sub.Reason = reason
	if err := s.save(ctx, ec, model.EventSubscriptionUpdated, &before, sub); err != nil {
		return nil, err
	}

	if plan.Security == model.SecurityApiKey {
		if _, err := s.issueApiKey(ctx, ec, sub); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// Reject refuses a pending subscription.
func (s *SubscriptionService) Reject(ctx context.Context, ec ExecutionContext, apiID, subscriptionID, reason string) (*model.Subscription, error) {
	sub, err := s.Get(ctx, ec, apiID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionPending {
		return nil, ErrSubscriptionNotPending
	}

	before := *sub
	now := nowFunc()
	sub.Status = model.SubscriptionRejected
	sub.Reason = reason
	sub.ProcessedAt = &now
	sub.ProcessedBy = ec.UserID
	sub.ClosedAt = &now
	sub.UpdatedAt = now
	if err := s.save(ctx, ec, model.EventSubscriptionUpdated, &before, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Pause suspends an accepted subscription and its keys.
func (s *SubscriptionService) Pause(ctx context.Context, ec ExecutionContext, apiID, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.Get(ctx, ec, apiID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionAccepted {
		return nil, ErrSubscriptionInvalidPause
	}

	before := *sub
	now := nowFunc()
	sub.Status = model.SubscriptionPaused
	sub.PausedAt = &now
	sub.UpdatedAt = now
	if err := s.save(ctx, ec, model.EventSubscriptionUpdated, &before, sub); err != nil {
		return nil, err
	}
	if err := s.setKeysPaused(ctx, sub.ID, true); err != nil {
		return nil, err
	}
	return sub, nil
}

// Resume reactivates a paused subscription and its keys.
func (s *SubscriptionService) Resume(ctx context.Context, ec ExecutionContext, apiID, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.Get(ctx, ec, apiID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionPaused {
		return nil, ErrSubscriptionNotPaused
	}

	before := *sub
	sub.Status = model.SubscriptionAccepted
	sub.PausedAt = nil
	sub.UpdatedAt = nowFunc()
	if err := s.save(ctx, ec, model.EventSubscriptionUpdated, &before, sub); err != nil {
		return nil, err
	}
	if err := s.setKeysPaused(ctx, sub.ID, false); err != nil {
		return nil, err
	}
	return sub, nil
}

// Close ends an active subscription. A pending subscription is rejected
// instead. Keys used only by this subscription are revoked.
func (s *SubscriptionService) Close(ctx context.Context, ec ExecutionContext, apiID, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.Get(ctx, ec, apiID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriptionPending {
		return s.Reject(ctx, ec, apiID, subscriptionID, "closed before validation")
	}
	return sub, s.close(ctx, ec, sub)
}

func (s *SubscriptionService) close(ctx context.Context, ec ExecutionContext, sub *model.Subscription) error {
	if !sub.Status.IsActive() {
		return ErrSubscriptionNotActive
	}

	before := *sub
	now := nowFunc()
	sub.Status = model.SubscriptionClosed
	sub.ClosedAt = &now
	sub.PausedAt = nil
	sub.UpdatedAt = now
	if err := s.save(ctx, ec, model.EventSubscriptionClosed, &before, sub); err != nil {
		return err
	}
	return s.revokeKeys(ctx, ec, sub)
}

// ExpireDue closes accepted or paused subscriptions whose ending date has
// passed and returns how many were closed.
func (s *SubscriptionService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListSubscriptions(ctx, repository.SubscriptionQuery{
		Statuses:     []model.SubscriptionStatus{model.SubscriptionAccepted, model.SubscriptionPaused},
		EndingBefore: &now,
	})
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, sub := range due {
		ec := ExecutionContext{UserID: SystemUser}
		if api, err := s.store.GetApi(ctx, sub.ApiID); err == nil {
			ec.EnvironmentID = api.EnvironmentID
		}
		if err := s.close(ctx, ec, sub); err != nil {
			s.logger.Error("subscription expiry failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *SubscriptionService) getSubscription(ctx context.Context, apiID, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, notFound(KindSubscription, subscriptionID)
	}
	if err != nil {
		return nil, err
	}
	if sub.ApiID != apiID {
		return nil, notFound(KindSubscription, subscriptionID)
	}
	return sub, nil
}

func (s *SubscriptionService) issueApiKey(ctx context.Context, ec ExecutionContext, sub *model.Subscription) (*model.ApiKey, error) {
	now := nowFunc()
	key := &model.ApiKey{
		ID:            newID(),
		Key:           auth.GenerateSubscriptionKey(),
		ApplicationID: sub.ApplicationID,
		Subscriptions: []string{sub.ID},
		ExpireAt:      sub.EndingAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateApiKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	err := s.audit.Record(ctx, ec, AuditInput{
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   sub.ApiID,
		Event:         model.EventApiKeyCreated,
		Properties: map[string]string{
			model.AuditPropertyApiKey:       key.ID,
			model.AuditPropertyApplication:  sub.ApplicationID,
			model.AuditPropertySubscription: sub.ID,
		},
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (s *SubscriptionService) setKeysPaused(ctx context.Context, subscriptionID string, paused bool) error {
	keys, err := s.store.ListApiKeysBySubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key.Revoked || key.Paused == paused {
			continue
		}
		key.Paused = paused
		key.UpdatedAt = nowFunc()
		if err := s.store.UpdateApiKey(ctx, key); err != nil {
			return fmt.Errorf("update api key %s: %w", key.ID, err)
		}
	}
	return nil
}

func (s *SubscriptionService) revokeKeys(ctx context.Context, ec ExecutionContext, sub *model.Subscription) error {
	keys, err := s.store.ListApiKeysBySubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key.Revoked {
			continue
		}
		key.Subscriptions = slices.DeleteFunc(key.Subscriptions, func(id string) bool { return id == sub.ID })
		if key.Subscription == sub.ID {
			key.Subscription = ""
		}
		now := nowFunc()
		key.UpdatedAt = now
		shared := len(key.Subscriptions) > 0
		if !shared {
			key.Revoked = true
			key.RevokedAt = &now
		}
		if err := s.store.UpdateApiKey(ctx, key); err != nil {
			return fmt.Errorf("update api key %s: %w", key.ID, err)
		}
		if shared {
			continue
		}
		if err := s.audit.Record(ctx, ec, AuditInput{
			ReferenceType: model.ReferenceAPI,
			ReferenceID:   sub.ApiID,
			Event:         model.EventApiKeyRevoked,
			Properties: map[string]string{
				model.AuditPropertyApiKey:       key.ID,
				model.AuditPropertySubscription: sub.ID,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubscriptionService) save(ctx context.Context, ec ExecutionContext, event string, before, after *model.Subscription) error {
	if err := s.store.UpdateSubscription(ctx, after); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return s.record(ctx, ec, event, before, after)
}

func (s *SubscriptionService) record(ctx context.Context, ec ExecutionContext, event string, before, after *model.Subscription) error {
	in := AuditInput{
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   after.ApiID,
		Event:         event,
		Properties: map[string]string{
			model.AuditPropertySubscription: after.ID,
			model.AuditPropertyApplication:  after.ApplicationID,
			model.AuditPropertyPlan:         after.PlanID,
		},
		After: after,
	}
	if before != nil {
		in.Before = before
	}
	if err := s.audit.Record(ctx, ec, in); err != nil {
		return err
	}

	publish(ctx, s.publisher, s.logger, events.Event{
		ID:            newID(),
		Type:          event,
		EnvironmentID: ec.EnvironmentID,
		ApiID:         after.ApiID,
		ReferenceID:   after.ID,
		Actor:         ec.UserID,
		Properties:    map[string]string{"status": string(after.Status)},
		OccurredAt:    nowFunc(),
	})
	return nil
}

func accept(sub *model.Subscription, processedBy string, now time.Time) {
	sub.Status = model.SubscriptionAccepted
	sub.ProcessedAt = &now
	sub.ProcessedBy = processedBy
	sub.UpdatedAt = now
	if sub.StartingAt == nil {
		sub.StartingAt = &now
	}
}
