package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// Member is a membership joined with its role and member details.
type Member struct {
	MembershipID string
	ID           string
	Type         model.MemberType
	DisplayName  string
	Email        string
	Role         string
}

// MembershipService manages non-owner memberships on a reference.
type MembershipService struct {
	store  repository.Store
	owners *PrimaryOwnerDomainService
	audit  *AuditService
}

// NewMembershipService creates a new MembershipService.
func NewMembershipService(store repository.Store, owners *PrimaryOwnerDomainService, auditService *AuditService) *MembershipService {
	return &MembershipService{store: store, owners: owners, audit: auditService}
}

// ListMembers returns every member of a reference with its role name.
func (s *MembershipService) ListMembers(ctx context.Context, refType model.ReferenceType, refID string) ([]*Member, error) {
	memberships, err := s.store.FindMemberships(ctx, repository.MembershipQuery{
		ReferenceType: refType,
		ReferenceID:   refID,
	})
	if err != nil {
		return nil, err
	}

	roleNames := make(map[string]string)
	members := make([]*Member, 0, len(memberships))
	for _, m := range memberships {
		name, ok := roleNames[m.RoleID]
		if !ok {
			role, err := s.store.GetRole(ctx, m.RoleID)
			if err != nil && !errors.Is(err, repository.ErrRoleNotFound) {
				return nil, err
			}
			if role != nil {
				name = role.Name
			}
			roleNames[m.RoleID] = name
		}

		member := &Member{MembershipID: m.ID, ID: m.MemberID, Type: m.MemberType, Role: name}
		owner, err := s.owners.ResolveOwner(ctx, m.MemberID, m.MemberType)
		switch {
		case IsNotFound(err):
			member.DisplayName = m.MemberID
		case err != nil:
			return nil, err
		default:
			member.DisplayName = owner.DisplayName
			member.Email = owner.Email
		}
		members = append(members, member)
	}
	return members, nil
}

// AddMember grants a non primary-owner role to a user or group.
func (s *MembershipService) AddMember(ctx context.Context, ec ExecutionContext, refType model.ReferenceType, refID, memberID string, memberType model.MemberType, roleName string) (*Member, error) {
	if roleName == model.RolePrimaryOwner {
		return nil, ErrPrimaryOwnerMembership
	}
	role, err := s.findRole(ctx, ec, refType, roleName)
	if err != nil {
		return nil, err
	}

	owner, err := s.owners.ResolveOwner(ctx, memberID, memberType)
	if err != nil {
		return nil, err
	}

	existing, err := s.findMembership(ctx, refType, refID, memberID, memberType)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrMemberAlreadyExists
	}

	now := nowFunc()
	membership := &model.Membership{
		ID:            newID(),
		MemberID:      memberID,
		MemberType:    memberType,
		ReferenceType: refType,
		ReferenceID:   refID,
		RoleID:        role.ID,
		Source:        "system",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("create membership: %w", err)
	}

	if err := s.audit.Record(ctx, ec, AuditInput{
		ReferenceType: refType,
		ReferenceID:   refID,
		Event:         model.EventMembershipCreated,
		Properties:    memberProperties(memberType, memberID),
		After:         membership,
	}); err != nil {
		return nil, err
	}

	return &Member{
		MembershipID: membership.ID,
		ID:           memberID,
		Type:         memberType,
		DisplayName:  owner.DisplayName,
		Email:        owner.Email,
		Role:         role.Name,
	}, nil
}

// UpdateMemberRole changes the role of an existing member.
func (s *MembershipService) UpdateMemberRole(ctx context.Context, ec ExecutionContext, refType model.ReferenceType, refID, memberID string, memberType model.MemberType, roleName string) (*Member, error) {
	if roleName == model.RolePrimaryOwner {
		return nil, ErrPrimaryOwnerMembership
	}

	membership, err := s.findMembership(ctx, refType, refID, memberID, memberType)
	if err != nil {
		return nil, err
	}
	if err := s.rejectPrimaryOwner(ctx, membership); err != nil {
		return nil, err
	}

	role, err := s.findRole(ctx, ec, refType, roleName)
	if err != nil {
		return nil, err
	}

	before := *membership
	membership.RoleID = role.ID
	membership.UpdatedAt = nowFunc()
	if err := s.store.UpdateMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("update membership: %w", err)
	}

	if err := s.audit.Record(ctx, ec, AuditInput{
		ReferenceType: refType,
		ReferenceID:   refID,
		Event:         model.EventMembershipUpdated,
		Properties:    memberProperties(memberType, memberID),
		Before:        &before,
		After:         membership,
	}); err != nil {
		return nil, err
	}

	return &Member{MembershipID: membership.ID, ID: memberID, Type: memberType, Role: role.Name}, nil
}

// RemoveMember deletes the membership of a non primary-owner member.
func (s *MembershipService) RemoveMember(ctx context.Context, ec ExecutionContext, refType model.ReferenceType, refID, memberID string, memberType model.MemberType) error {
	membership, err := s.findMembership(ctx, refType, refID, memberID, memberType)
	if err != nil {
		return err
	}
	if err := s.rejectPrimaryOwner(ctx, membership); err != nil {
		return err
	}

	if err := s.store.DeleteMembership(ctx, membership.ID); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}

	return s.audit.Record(ctx, ec, AuditInput{
		ReferenceType: refType,
		ReferenceID:   refID,
		Event:         model.EventMembershipDeleted,
		Properties:    memberProperties(memberType, memberID),
		Before:        membership,
	})
}

func (s *MembershipService) findRole(ctx context.Context, ec ExecutionContext, scope model.RoleScope, name string) (*model.Role, error) {
	role, err := s.store.FindRole(ctx, ec.OrganizationID, scope, name)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return nil, notFound(KindRole, fmt.Sprintf("%s_%s", scope, name))
	}
	return role, err
}

func (s *MembershipService) findMembership(ctx context.Context, refType model.ReferenceType, refID, memberID string, memberType model.MemberType) (*model.Membership, error) {
	found, err := s.store.FindMemberships(ctx, repository.MembershipQuery{
		ReferenceType: refType,
		ReferenceID:   refID,
		MemberID:      memberID,
		MemberType:    memberType,
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, notFound(KindMember, memberID)
	}
	return found[0], nil
}

func (s *MembershipService) rejectPrimaryOwner(ctx context.Context, m *model.Membership) error {
	role, err := s.store.GetRole(ctx, m.RoleID)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if role.IsPrimaryOwner() {
		return ErrPrimaryOwnerMembership
	}
	return nil
}
