package dto

import (
	"time"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// PlanSecurityEntity describes how consumers authenticate on a plan.
type PlanSecurityEntity struct {
	Type          string `json:"type"`
	Configuration string `json:"configuration,omitempty"`
}

// PlanEntity is the management representation of a plan.
type PlanEntity struct {
	ID                string             `json:"id"`
	CrossID           string             `json:"crossId,omitempty"`
	ApiID             string             `json:"apiId"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Security          PlanSecurityEntity `json:"security"`
	SelectionRule     string             `json:"selectionRule,omitempty"`
	Status            string             `json:"status"`
	Validation        string             `json:"validation"`
	Mode              string             `json:"mode"`
	Order             int                `json:"order"`
	Characteristics   []string           `json:"characteristics"`
	ExcludedGroups    []string           `json:"excludedGroups"`
	Tags              []string           `json:"tags"`
	CommentRequired   bool               `json:"commentRequired"`
	CommentMessage    string             `json:"commentMessage,omitempty"`
	GeneralConditions string             `json:"generalConditions,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	PublishedAt       *time.Time         `json:"publishedAt,omitempty"`
	ClosedAt          *time.Time         `json:"closedAt,omitempty"`
	NeedRedeployAt    *time.Time         `json:"needRedeployAt,omitempty"`
}

// ToPlanEntity converts a plan model to its DTO.
func ToPlanEntity(plan *model.Plan) PlanEntity {
	return PlanEntity{
		ID:          plan.ID,
		CrossID:     plan.CrossID,
		ApiID:       plan.ApiID,
		Name:        plan.Name,
		Description: plan.Description,
		Security: PlanSecurityEntity{
			Type:          string(plan.Security),
			Configuration: plan.SecurityDefinition,
		},
		SelectionRule:     plan.SelectionRule,
		Status:            string(plan.Status),
		Validation:        string(plan.Validation),
		Mode:              string(plan.Mode),
		Order:             plan.Order,
		Characteristics:   nonNil(plan.Characteristics),
		ExcludedGroups:    nonNil(plan.ExcludedGroups),
		Tags:              nonNil(plan.Tags),
		CommentRequired:   plan.CommentRequired,
		CommentMessage:    plan.CommentMessage,
		GeneralConditions: plan.GeneralConditions,
		CreatedAt:         plan.CreatedAt,
		UpdatedAt:         plan.UpdatedAt,
		PublishedAt:       plan.PublishedAt,
		ClosedAt:          plan.ClosedAt,
		NeedRedeployAt:    plan.NeedRedeployAt,
	}
}

// ToPlanEntities converts a slice of plans.
func ToPlanEntities(plans []*model.Plan) []PlanEntity {
	out := make([]PlanEntity, 0, len(plans))
	for _, p := range plans {
		out = append(out, ToPlanEntity(p))
	}
	return out
}

// NewPlanEntity is the request body for creating a plan.
type NewPlanEntity struct {
	CrossID           string             `json:"crossId,omitempty"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Security          PlanSecurityEntity `json:"security"`
	SelectionRule     string             `json:"selectionRule,omitempty"`
	Status            string             `json:"status,omitempty"`
	Validation        string             `json:"validation,omitempty"`
	Mode              string             `json:"mode,omitempty"`
	Characteristics   []string           `json:"characteristics,omitempty"`
	ExcludedGroups    []string           `json:"excludedGroups,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
	CommentRequired   bool               `json:"commentRequired,omitempty"`
	CommentMessage    string             `json:"commentMessage,omitempty"`
	GeneralConditions string             `json:"generalConditions,omitempty"`
}

// ToInput converts the request to service input.
func (e NewPlanEntity) ToInput() service.CreatePlanInput {
	return service.CreatePlanInput{
		CrossID:            e.CrossID,
		Name:               e.Name,
		Description:        e.Description,
		Security:           model.PlanSecurity(e.Security.Type),
		SecurityDefinition: e.Security.Configuration,
		SelectionRule:      e.SelectionRule,
		Status:             model.PlanStatus(e.Status),
		Validation:         model.PlanValidation(e.Validation),
		Mode:               model.PlanMode(e.Mode),
		Characteristics:    e.Characteristics,
		ExcludedGroups:     e.ExcludedGroups,
		Tags:               e.Tags,
		CommentRequired:    e.CommentRequired,
		CommentMessage:     e.CommentMessage,
		GeneralConditions:  e.GeneralConditions,
	}
}

// UpdatePlanEntity is the request body for updating a plan.
type UpdatePlanEntity struct {
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Security          PlanSecurityEntity `json:"security"`
	SelectionRule     string             `json:"selectionRule,omitempty"`
	Validation        string             `json:"validation,omitempty"`
	Characteristics   []string           `json:"characteristics,omitempty"`
	ExcludedGroups    []string           `json:"excludedGroups,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
	CommentRequired   bool               `json:"commentRequired,omitempty"`
	CommentMessage    string             `json:"commentMessage,omitempty"`
	GeneralConditions string             `json:"generalConditions,omitempty"`
}

// ToInput converts the request to service input.
func (e UpdatePlanEntity) ToInput() service.UpdatePlanInput {
	return service.UpdatePlanInput{
		Name:               e.Name,
		Description:        e.Description,
		Security:           model.PlanSecurity(e.Security.Type),
		SecurityDefinition: e.Security.Configuration,
		SelectionRule:      e.SelectionRule,
		Validation:         model.PlanValidation(e.Validation),
		Characteristics:    e.Characteristics,
		ExcludedGroups:     e.ExcludedGroups,
		Tags:               e.Tags,
		CommentRequired:    e.CommentRequired,
		CommentMessage:     e.CommentMessage,
		GeneralConditions:  e.GeneralConditions,
	}
}

// ReorderPlanEntity moves a plan to a new position.
type ReorderPlanEntity struct {
	Order int `json:"order"`
}
