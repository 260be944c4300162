// Package memory provides an in-process implementation of repository.Store.
// It backs the service and handler tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// Store keeps every entity in maps guarded by a single RWMutex.
// Values are copied on the way in and out so callers never share state.
type Store struct {
	mu            sync.RWMutex
	apis          map[string]model.Api
	plans         map[string]model.Plan
	subscriptions map[string]model.Subscription
	apiKeys       map[string]model.ApiKey
	memberships   map[string]model.Membership
	roles         map[string]model.Role
	users         map[string]model.User
	groups        map[string]model.Group
	applications  map[string]model.Application
	integrations  map[string]model.Integration
	alerts        map[string]model.AlertTrigger
	tokens        map[string]model.Token
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		apis:          make(map[string]model.Api),
		plans:         make(map[string]model.Plan),
		subscriptions: make(map[string]model.Subscription),
		apiKeys:       make(map[string]model.ApiKey),
		memberships:   make(map[string]model.Membership),
		roles:         make(map[string]model.Role),
		users:         make(map[string]model.User),
		groups:        make(map[string]model.Group),
		applications:  make(map[string]model.Application),
		integrations:  make(map[string]model.Integration),
		alerts:        make(map[string]model.AlertTrigger),
		tokens:        make(map[string]model.Token),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// ---- APIs ----

func (s *Store) CreateApi(ctx context.Context, api *model.Api) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apis[api.ID]; ok {
		return repository.ErrAlreadyExists
	}
	for _, existing := range s.apis {
		if existing.EnvironmentID != api.EnvironmentID {
			continue
		}
		if api.CrossID != "" && existing.CrossID == api.CrossID {
			return repository.ErrAlreadyExists
		}
		if api.ContextPath != "" && existing.ContextPath == api.ContextPath {
			return repository.ErrAlreadyExists
		}
	}
	s.apis[api.ID] = cloneApi(*api)
	return nil
}

func (s *Store) GetApi(ctx context.Context, id string) (*model.Api, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	api, ok := s.apis[id]
	if !ok {
		return nil, repository.ErrApiNotFound
	}
	c := cloneApi(api)
	return &c, nil
}

func (s *Store) GetApiByCrossID(ctx context.Context, environmentID, crossID string) (*model.Api, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, api := range s.apis {
		if api.EnvironmentID == environmentID && api.CrossID == crossID && crossID != "" {
			c := cloneApi(api)
			return &c, nil
		}
	}
	return nil, repository.ErrApiNotFound
}

func (s *Store) ListApis(ctx context.Context, q repository.ApiQuery) ([]*model.Api, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Api
	for _, api := range s.apis {
		if q.EnvironmentID != "" && api.EnvironmentID != q.EnvironmentID {
			continue
		}
		if q.Name != "" && !strings.Contains(strings.ToLower(api.Name), strings.ToLower(q.Name)) {
			continue
		}
		if q.Visibility != "" && api.Visibility != q.Visibility {
			continue
		}
		if q.LifecycleState != "" && api.LifecycleState != q.LifecycleState {
			continue
		}
		if len(q.IDs) > 0 && !slices.Contains(q.IDs, api.ID) {
			continue
		}
		c := cloneApi(api)
		matched = append(matched, &c)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	return paginate(matched, q.Page, q.Size), total, nil
}

func (s *Store) UpdateApi(ctx context.Context, api *model.Api) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apis[api.ID]; !ok {
		return repository.ErrApiNotFound
	}
	for id, existing := range s.apis {
		if id != api.ID && existing.EnvironmentID == api.EnvironmentID &&
			api.ContextPath != "" && existing.ContextPath == api.ContextPath {
			return repository.ErrAlreadyExists
		}
	}
	s.apis[api.ID] = cloneApi(*api)
	return nil
}

func (s *Store) DeleteApi(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apis[id]; !ok {
		return repository.ErrApiNotFound
	}
	delete(s.apis, id)
	for planID, plan := range s.plans {
		if plan.ApiID == id {
			delete(s.plans, planID)
		}
	}
	return nil
}

// ---- Plans ----

func (s *Store) CreatePlan(ctx context.Context, plan *model.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[plan.ID]; ok {
		return repository.ErrAlreadyExists
	}
	s.plans[plan.ID] = clonePlan(*plan)
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[id]
	if !ok {
		return nil, repository.ErrPlanNotFound
	}
	c := clonePlan(plan)
	return &c, nil
}

func (s *Store) ListPlansByApi(ctx context.Context, apiID string) ([]*model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var plans []*model.Plan
	for _, plan := range s.plans {
		if plan.ApiID == apiID {
			c := clonePlan(plan)
			plans = append(plans, &c)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Order != plans[j].Order {
			return plans[i].Order < plans[j].Order
		}
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
	return plans, nil
}

func (s *Store) UpdatePlan(ctx context.Context, plan *model.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[plan.ID]; !ok {
		return repository.ErrPlanNotFound
	}
	s.plans[plan.ID] = clonePlan(*plan)
	return nil
}

func (s *Store) DeletePlan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[id]; !ok {
		return repository.ErrPlanNotFound
	}
	delete(s.plans, id)
	return nil
}

// ---- Subscriptions ----

func (s *Store) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[sub.ID]; ok {
		return repository.ErrAlreadyExists
	}
	s.subscriptions[sub.ID] = *sub
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, repository.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, q repository.SubscriptionQuery) ([]*model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []*model.Subscription
	for _, sub := range s.subscriptions {
		if q.ApiID != "" && sub.ApiID != q.ApiID {
			continue
		}
		if len(q.PlanIDs) > 0 && !slices.Contains(q.PlanIDs, sub.PlanID) {
			continue
		}
		if q.ApplicationID != "" && sub.ApplicationID != q.ApplicationID {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, sub.Status) {
			continue
		}
		if q.EndingBefore != nil && (sub.EndingAt == nil || sub.EndingAt.After(*q.EndingBefore)) {
			continue
		}
		c := sub
		subs = append(subs, &c)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[sub.ID]; !ok {
		return repository.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID] = *sub
	return nil
}

// ---- API keys ----

func (s *Store) CreateApiKey(ctx context.Context, key *model.ApiKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.apiKeys {
		if existing.Key == key.Key {
			return repository.ErrAlreadyExists
		}
	}
	s.apiKeys[key.ID] = cloneApiKey(*key)
	return nil
}

func (s *Store) ListApiKeys(ctx context.Context) ([]*model.ApiKey, error) {
	return s.filterApiKeys(func(*model.ApiKey) bool { return true }), nil
}

func (s *Store) ListApiKeysBySubscription(ctx context.Context, subscriptionID string) ([]*model.ApiKey, error) {
	return s.filterApiKeys(func(k *model.ApiKey) bool { return k.HasSubscription(subscriptionID) }), nil
}

func (s *Store) UpdateApiKey(ctx context.Context, key *model.ApiKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apiKeys[key.ID]; !ok {
		return repository.ErrApiKeyNotFound
	}
	s.apiKeys[key.ID] = cloneApiKey(*key)
	return nil
}

func (s *Store) filterApiKeys(keep func(*model.ApiKey) bool) []*model.ApiKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []*model.ApiKey
	for _, key := range s.apiKeys {
		c := cloneApiKey(key)
		if keep(&c) {
			keys = append(keys, &c)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.Before(keys[j].CreatedAt)
	})
	return keys
}

// ---- Memberships and roles ----

func (s *Store) CreateMembership(ctx context.Context, m *model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memberships[m.ID] = *m
	return nil
}

func (s *Store) FindMemberships(ctx context.Context, q repository.MembershipQuery) ([]*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Membership
	for _, m := range s.memberships {
		if q.ReferenceType != "" && m.ReferenceType != q.ReferenceType {
			continue
		}
		if q.ReferenceID != "" && m.ReferenceID != q.ReferenceID {
			continue
		}
		if q.MemberID != "" && m.MemberID != q.MemberID {
			continue
		}
		if q.MemberType != "" && m.MemberType != q.MemberType {
			continue
		}
		if q.RoleID != "" && m.RoleID != q.RoleID {
			continue
		}
		c := m
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateMembership(ctx context.Context, m *model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memberships[m.ID]; !ok {
		return repository.ErrMembershipNotFound
	}
	s.memberships[m.ID] = *m
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memberships[id]; !ok {
		return repository.ErrMembershipNotFound
	}
	delete(s.memberships, id)
	return nil
}

func (s *Store) DeleteMembershipsByReference(ctx context.Context, refType model.ReferenceType, refID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.memberships {
		if m.ReferenceType == refType && m.ReferenceID == refID {
			delete(s.memberships, id)
		}
	}
	return nil
}

func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.roles {
		if existing.OrganizationID == role.OrganizationID && existing.Scope == role.Scope && existing.Name == role.Name {
			return repository.ErrAlreadyExists
		}
	}
	s.roles[role.ID] = *role
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[id]
	if !ok {
		return nil, repository.ErrRoleNotFound
	}
	return &role, nil
}

func (s *Store) FindRole(ctx context.Context, organizationID string, scope model.RoleScope, name string) (*model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, role := range s.roles {
		if role.OrganizationID == organizationID && role.Scope == scope && role.Name == name {
			c := role
			return &c, nil
		}
	}
	return nil, repository.ErrRoleNotFound
}

func (s *Store) ListRoles(ctx context.Context, organizationID string) ([]*model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roles []*model.Role
	for _, role := range s.roles {
		if role.OrganizationID == organizationID {
			c := role
			roles = append(roles, &c)
		}
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Scope != roles[j].Scope {
			return roles[i].Scope < roles[j].Scope
		}
		return roles[i].Name < roles[j].Name
	})
	return roles, nil
}

// ---- Directory ----

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return repository.ErrAlreadyExists
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (s *Store) CreateGroup(ctx context.Context, group *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups[group.ID] = *group
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[id]
	if !ok {
		return nil, repository.ErrGroupNotFound
	}
	return &group, nil
}

func (s *Store) CreateApplication(ctx context.Context, app *model.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *app
	c.Groups = slices.Clone(app.Groups)
	s.applications[app.ID] = c
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	app.Groups = slices.Clone(app.Groups)
	return &app, nil
}

func (s *Store) CreateIntegration(ctx context.Context, integration *model.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.integrations[integration.ID] = *integration
	return nil
}

func (s *Store) GetIntegration(ctx context.Context, id string) (*model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integration, ok := s.integrations[id]
	if !ok {
		return nil, repository.ErrIntegrationNotFound
	}
	return &integration, nil
}

// ---- Alert triggers ----

func (s *Store) CreateAlertTrigger(ctx context.Context, trigger *model.AlertTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts[trigger.ID] = *trigger
	return nil
}

func (s *Store) ListAlertTriggers(ctx context.Context) ([]*model.AlertTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var triggers []*model.AlertTrigger
	for _, t := range s.alerts {
		c := t
		triggers = append(triggers, &c)
	}
	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].CreatedAt.Before(triggers[j].CreatedAt)
	})
	return triggers, nil
}

func (s *Store) UpdateAlertTrigger(ctx context.Context, trigger *model.AlertTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[trigger.ID]; !ok {
		return repository.ErrAlertTriggerNotFound
	}
	s.alerts[trigger.ID] = *trigger
	return nil
}

// ---- Management tokens ----

func (s *Store) CreateToken(ctx context.Context, token *model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *token
	c.Scopes = slices.Clone(token.Scopes)
	s.tokens[token.ID] = c
	return nil
}

func (s *Store) GetTokenByID(ctx context.Context, id string) (*model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	token.Scopes = slices.Clone(token.Scopes)
	return &token, nil
}

func (s *Store) GetTokensByPrefix(ctx context.Context, prefix string) ([]*model.Token, error) {
	return s.filterTokens(func(t *model.Token) bool { return t.TokenPrefix == prefix && !t.IsRevoked() }), nil
}

func (s *Store) ListTokensByUserID(ctx context.Context, userID string) ([]*model.Token, error) {
	return s.filterTokens(func(t *model.Token) bool { return t.UserID == userID }), nil
}

func (s *Store) RevokeToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok || token.IsRevoked() {
		return repository.ErrTokenNotFound
	}
	now := time.Now()
	token.RevokedAt = &now
	s.tokens[id] = token
	return nil
}

func (s *Store) UpdateTokenLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil
	}
	now := time.Now()
	token.LastUsedAt = &now
	s.tokens[id] = token
	return nil
}

func (s *Store) filterTokens(keep func(*model.Token) bool) []*model.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []*model.Token
	for _, t := range s.tokens {
		c := t
		c.Scopes = slices.Clone(t.Scopes)
		if keep(&c) {
			tokens = append(tokens, &c)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens
}

// ---- helpers ----

func cloneApi(a model.Api) model.Api {
	a.Tags = slices.Clone(a.Tags)
	a.Labels = slices.Clone(a.Labels)
	a.Categories = slices.Clone(a.Categories)
	a.Groups = slices.Clone(a.Groups)
	return a
}

func clonePlan(p model.Plan) model.Plan {
	p.Characteristics = slices.Clone(p.Characteristics)
	p.ExcludedGroups = slices.Clone(p.ExcludedGroups)
	p.Tags = slices.Clone(p.Tags)
	return p
}

func cloneApiKey(k model.ApiKey) model.ApiKey {
	k.Subscriptions = slices.Clone(k.Subscriptions)
	return k
}

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		size = 20
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
