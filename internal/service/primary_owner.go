package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// PrimaryOwnerDomainService resolves and assigns the primary owner of APIs,
// applications and integrations.
type PrimaryOwnerDomainService struct {
	store repository.Store
	audit *AuditService
}

// NewPrimaryOwnerDomainService creates a new PrimaryOwnerDomainService.
func NewPrimaryOwnerDomainService(store repository.Store, auditService *AuditService) *PrimaryOwnerDomainService {
	return &PrimaryOwnerDomainService{store: store, audit: auditService}
}

// GetApiPrimaryOwner returns the primary owner of an API.
func (s *PrimaryOwnerDomainService) GetApiPrimaryOwner(ctx context.Context, organizationID, apiID string) (*model.PrimaryOwner, error) {
	return s.getPrimaryOwner(ctx, organizationID, model.ReferenceAPI, apiID)
}

// GetApplicationPrimaryOwner returns the primary owner of an application.
func (s *PrimaryOwnerDomainService) GetApplicationPrimaryOwner(ctx context.Context, organizationID, applicationID string) (*model.PrimaryOwner, error) {
	return s.getPrimaryOwner(ctx, organizationID, model.ReferenceApplication, applicationID)
}

// GetIntegrationPrimaryOwner returns the primary owner of an integration.
func (s *PrimaryOwnerDomainService) GetIntegrationPrimaryOwner(ctx context.Context, organizationID, integrationID string) (*model.PrimaryOwner, error) {
	return s.getPrimaryOwner(ctx, organizationID, model.ReferenceIntegration, integrationID)
}

func (s *PrimaryOwnerDomainService) getPrimaryOwner(ctx context.Context, organizationID string, refType model.ReferenceType, refID string) (*model.PrimaryOwner, error) {
	ownerNotFound := &PrimaryOwnerNotFoundError{ReferenceType: refType, ReferenceID: refID}

	membership, err := s.primaryOwnerMembership(ctx, organizationID, refType, refID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ownerNotFound
	}

	switch membership.MemberType {
	case model.MemberUser:
		user, err := s.store.GetUser(ctx, membership.MemberID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ownerNotFound
		}
		if err != nil {
			return nil, err
		}
		return userOwner(user), nil

	case model.MemberGroup:
		group, err := s.store.GetGroup(ctx, membership.MemberID)
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, ownerNotFound
		}
		if err != nil {
			return nil, err
		}
		return s.groupOwner(ctx, group)
	}

	return nil, ownerNotFound
}

// primaryOwnerMembership returns nil without error when the scope has no
// primary owner role or the reference has no such membership.
func (s *PrimaryOwnerDomainService) primaryOwnerMembership(ctx context.Context, organizationID string, refType model.ReferenceType, refID string) (*model.Membership, error) {
	role, err := s.store.FindRole(ctx, organizationID, refType, model.RolePrimaryOwner)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find primary owner role: %w", err)
	}

	memberships, err := s.store.FindMemberships(ctx, repository.MembershipQuery{
		ReferenceType: refType,
		ReferenceID:   refID,
		RoleID:        role.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("find primary owner membership: %w", err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}
	return memberships[0], nil
}

func userOwner(user *model.User) *model.PrimaryOwner {
	return &model.PrimaryOwner{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName(),
		Type:        model.MemberUser,
	}
}

// groupOwner takes the contact email from the group's API primary owner user.
func (s *PrimaryOwnerDomainService) groupOwner(ctx context.Context, group *model.Group) (*model.PrimaryOwner, error) {
	owner := &model.PrimaryOwner{
		ID:          group.ID,
		DisplayName: group.Name,
		Type:        model.MemberGroup,
	}
	if group.ApiPrimaryOwner == "" {
		return owner, nil
	}

	user, err := s.store.GetUser(ctx, group.ApiPrimaryOwner)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
	case err != nil:
		return nil, err
	default:
		owner.Email = user.Email
	}
	return owner, nil
}

// ResolveOwner loads the user or group that would become a primary owner.
func (s *PrimaryOwnerDomainService) ResolveOwner(ctx context.Context, memberID string, memberType model.MemberType) (*model.PrimaryOwner, error) {
	switch memberType {
	case model.MemberUser:
		user, err := s.store.GetUser(ctx, memberID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFound(KindUser, memberID)
		}
		if err != nil {
			return nil, err
		}
		return userOwner(user), nil
	case model.MemberGroup:
		group, err := s.store.GetGroup(ctx, memberID)
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, notFound(KindGroup, memberID)
		}
		if err != nil {
			return nil, err
		}
		return s.groupOwner(ctx, group)
	}
	return nil, invalid("type", "member type must be USER or GROUP")
}

// PrimaryOwnerRole returns the PRIMARY_OWNER role of a scope in an
// organization.
func (s *PrimaryOwnerDomainService) PrimaryOwnerRole(ctx context.Context, organizationID string, refType model.ReferenceType) (*model.Role, error) {
	role, err := s.store.FindRole(ctx, organizationID, refType, model.RolePrimaryOwner)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return nil, notFound(KindRole, fmt.Sprintf("%s_%s", refType, model.RolePrimaryOwner))
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// CreatePrimaryOwnerMembership makes owner the primary owner of a reference.
func (s *PrimaryOwnerDomainService) CreatePrimaryOwnerMembership(ctx context.Context, ec ExecutionContext, refType model.ReferenceType, refID string, owner *model.PrimaryOwner) error {
	role, err := s.PrimaryOwnerRole(ctx, ec.OrganizationID, refType)
	if err != nil {
		return err
	}

	now := nowFunc()
	membership := &model.Membership{
		ID:            newID(),
		MemberID:      owner.ID,
		MemberType:    owner.Type,
		ReferenceType: refType,
		ReferenceID:   refID,
		RoleID:        role.ID,
		Source:        "system",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateMembership(ctx, membership); err != nil {
		return fmt.Errorf("create primary owner membership: %w", err)
	}

	return s.audit.Record(ctx, ec, AuditInput{
		ReferenceType: refType,
		ReferenceID:   refID,
		Event:         model.EventMembershipCreated,
		Properties:    memberProperties(owner.Type, owner.ID),
		After:         membership,
	})
}

// TransferOwnership moves the primary owner role of a reference to another
// user or group. The previous owner keeps the OWNER role when the scope
// defines one and loses its membership otherwise.
func (s *PrimaryOwnerDomainService) TransferOwnership(ctx context.Context, ec ExecutionContext, refType model.ReferenceType, refID, memberID string, memberType model.MemberType) (*model.PrimaryOwner, error) {
	newOwner, err := s.ResolveOwner(ctx, memberID, memberType)
	if err != nil {
		return nil, err
	}

	poRole, err := s.store.FindRole(ctx, ec.OrganizationID, refType, model.RolePrimaryOwner)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return nil, notFound(KindRole, fmt.Sprintf("%s_%s", refType, model.RolePrimaryOwner))
	}
	if err != nil {
		return nil, err
	}

	current, err := s.store.FindMemberships(ctx, repository.MembershipQuery{
		ReferenceType: refType,
		ReferenceID:   refID,
		RoleID:        poRole.ID,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range current {
		if m.MemberID == memberID && m.MemberType == memberType {
			return nil, ErrTransferToCurrentOwner
		}
	}

	var ownerRoleID string
	ownerRole, err := s.store.FindRole(ctx, ec.OrganizationID, refType, model.RoleOwner)
	switch {
	case errors.Is(err, repository.ErrRoleNotFound):
	case err != nil:
		return nil, err
	default:
		ownerRoleID = ownerRole.ID
	}

	now := nowFunc()
	for _, m := range current {
		before := *m
		if ownerRoleID != "" {
			m.RoleID = ownerRoleID
			m.UpdatedAt = now
			if err := s.store.UpdateMembership(ctx, m); err != nil {
				return nil, fmt.Errorf("demote previous owner: %w", err)
			}
		} else if err := s.store.DeleteMembership(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("remove previous owner: %w", err)
		}
		if err := s.audit.Record(ctx, ec, AuditInput{
			ReferenceType: refType,
			ReferenceID:   refID,
			Event:         model.EventMembershipUpdated,
			Properties:    memberProperties(m.MemberType, m.MemberID),
			Before:        &before,
			After:         m,
		}); err != nil {
			return nil, err
		}
	}

	existing, err := s.store.FindMemberships(ctx, repository.MembershipQuery{
		ReferenceType: refType,
		ReferenceID:   refID,
		MemberID:      memberID,
		MemberType:    memberType,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if err := s.store.DeleteMembership(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("replace existing membership: %w", err)
		}
	}

	if err := s.CreatePrimaryOwnerMembership(ctx, ec, refType, refID, newOwner); err != nil {
		return nil, err
	}
	return newOwner, nil
}

func memberProperties(memberType model.MemberType, memberID string) map[string]string {
	if memberType == model.MemberGroup {
		return map[string]string{model.AuditPropertyGroup: memberID}
	}
	return map[string]string{model.AuditPropertyUser: memberID}
}
