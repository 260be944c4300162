package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// PortalService serves the read-only developer portal view of an
// environment. Only published public APIs are visible.
type PortalService struct {
	store  repository.Store
	owners *PrimaryOwnerDomainService
}

// NewPortalService creates a new PortalService.
func NewPortalService(store repository.Store, owners *PrimaryOwnerDomainService) *PortalService {
	return &PortalService{store: store, owners: owners}
}

// PortalApi is a visible API with its resolved owner. Owner is nil when the
// API has no resolvable primary owner.
type PortalApi struct {
	Api   *model.Api
	Owner *model.PrimaryOwner
}

// ListApis returns the visible APIs of an environment.
func (s *PortalService) ListApis(ctx context.Context, organizationID, environmentID, query string, page Page) ([]*PortalApi, int, error) {
	page = page.normalize()
	apis, total, err := s.store.ListApis(ctx, repository.ApiQuery{
		EnvironmentID:  environmentID,
		Name:           strings.TrimSpace(query),
		Visibility:     model.VisibilityPublic,
		LifecycleState: model.LifecyclePublished,
		Page:           page.Number,
		Size:           page.Size,
	})
	if err != nil {
		return nil, 0, err
	}

	out := make([]*PortalApi, 0, len(apis))
	for _, api := range apis {
		item, err := s.withOwner(ctx, organizationID, api)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, item)
	}
	return out, total, nil
}

// GetApi returns a visible API. Hidden APIs are reported as missing.
func (s *PortalService) GetApi(ctx context.Context, organizationID, environmentID, apiID string) (*PortalApi, error) {
	api, err := s.visibleApi(ctx, environmentID, apiID)
	if err != nil {
		return nil, err
	}
	return s.withOwner(ctx, organizationID, api)
}

// ListPlans returns the published plans of a visible API in order.
func (s *PortalService) ListPlans(ctx context.Context, environmentID, apiID string) ([]*model.Plan, error) {
	if _, err := s.visibleApi(ctx, environmentID, apiID); err != nil {
		return nil, err
	}
	plans, err := s.store.ListPlansByApi(ctx, apiID)
	if err != nil {
		return nil, err
	}
	published := plans[:0]
	for _, p := range plans {
		if p.IsPublished() {
			published = append(published, p)
		}
	}
	return published, nil
}

// ListApplicationSubscriptions returns the subscriptions of an application of
// the environment, newest first. Only APIs visible in the portal are kept.
func (s *PortalService) ListApplicationSubscriptions(ctx context.Context, environmentID, applicationID string) ([]*model.Subscription, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if errors.Is(err, repository.ErrApplicationNotFound) {
		return nil, notFound(KindApplication, applicationID)
	}
	if err != nil {
		return nil, err
	}
	if app.EnvironmentID != environmentID {
		return nil, notFound(KindApplication, applicationID)
	}

	subs, err := s.store.ListSubscriptions(ctx, repository.SubscriptionQuery{ApplicationID: applicationID})
	if err != nil {
		return nil, err
	}
	visible := make(map[string]bool)
	out := make([]*model.Subscription, 0, len(subs))
	for _, sub := range subs {
		ok, seen := visible[sub.ApiID]
		if !seen {
			_, err := s.visibleApi(ctx, environmentID, sub.ApiID)
			if err != nil && !IsNotFound(err) {
				return nil, err
			}
			ok = err == nil
			visible[sub.ApiID] = ok
		}
		if ok {
			out = append(out, sub)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *PortalService) visibleApi(ctx context.Context, environmentID, apiID string) (*model.Api, error) {
	api, err := findApi(ctx, s.store, ExecutionContext{EnvironmentID: environmentID}, apiID)
	if err != nil {
		return nil, err
	}
	if !api.IsPortalVisible() {
		return nil, notFound(KindApi, apiID)
	}
	return api, nil
}

func (s *PortalService) withOwner(ctx context.Context, organizationID string, api *model.Api) (*PortalApi, error) {
	owner, err := s.owners.GetApiPrimaryOwner(ctx, organizationID, api.ID)
	var poErr *PrimaryOwnerNotFoundError
	if errors.As(err, &poErr) {
		return &PortalApi{Api: api}, nil
	}
	if err != nil {
		return nil, err
	}
	return &PortalApi{Api: api, Owner: owner}, nil
}
