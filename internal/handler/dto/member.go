package dto

import (
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// PrimaryOwnerEntity is the owner shown on APIs, applications and integrations.
type PrimaryOwnerEntity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// ToPrimaryOwnerEntity converts a primary owner. It returns nil for a nil owner.
func ToPrimaryOwnerEntity(owner *model.PrimaryOwner) *PrimaryOwnerEntity {
	if owner == nil {
		return nil
	}
	return &PrimaryOwnerEntity{
		ID:          owner.ID,
		Email:       owner.Email,
		DisplayName: owner.DisplayName,
		Type:        string(owner.Type),
	}
}

// MemberEntity is a member of an API or application.
type MemberEntity struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
}

// ToMemberEntities converts members to DTOs.
func ToMemberEntities(members []*service.Member) []MemberEntity {
	out := make([]MemberEntity, 0, len(members))
	for _, m := range members {
		out = append(out, ToMemberEntity(m))
	}
	return out
}

// ToMemberEntity converts a member to its DTO.
func ToMemberEntity(m *service.Member) MemberEntity {
	return MemberEntity{
		ID:          m.ID,
		Type:        string(m.Type),
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Role:        m.Role,
	}
}

// AddMemberEntity is the request body for adding a member.
type AddMemberEntity struct {
	MemberID string `json:"memberId"`
	Type     string `json:"type,omitempty"`
	Role     string `json:"role"`
}

// MemberType returns the requested member type, USER when unset.
func (e AddMemberEntity) MemberType() model.MemberType {
	if e.Type == "" {
		return model.MemberUser
	}
	return model.MemberType(e.Type)
}

// UpdateMemberEntity changes the role of a member.
type UpdateMemberEntity struct {
	Type string `json:"type,omitempty"`
	Role string `json:"role"`
}

// TransferOwnershipEntity is the request body for an ownership transfer.
type TransferOwnershipEntity struct {
	NewPrimaryOwnerID   string `json:"newPrimaryOwnerId"`
	NewPrimaryOwnerType string `json:"newPrimaryOwnerType,omitempty"`
}
