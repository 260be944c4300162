// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// DefinitionContextEntity tells who manages an API definition.
type DefinitionContextEntity struct {
	Origin   string `json:"origin" yaml:"origin"`
	Mode     string `json:"mode,omitempty" yaml:"mode,omitempty"`
	SyncFrom string `json:"syncFrom,omitempty" yaml:"syncFrom,omitempty"`
}

// ApiEntity is the management representation of an API.
type ApiEntity struct {
	ID                             string                  `json:"id"`
	CrossID                        string                  `json:"crossId,omitempty"`
	EnvironmentID                  string                  `json:"environmentId"`
	Name                           string                  `json:"name"`
	ApiVersion                     string                  `json:"apiVersion"`
	Description                    string                  `json:"description,omitempty"`
	DefinitionVersion              string                  `json:"definitionVersion"`
	Type                           string                  `json:"type"`
	ContextPath                    string                  `json:"contextPath"`
	State                          string                  `json:"state"`
	LifecycleState                 string                  `json:"lifecycleState"`
	Visibility                     string                  `json:"visibility"`
	Tags                           []string                `json:"tags"`
	Labels                         []string                `json:"labels"`
	Categories                     []string                `json:"categories"`
	Groups                         []string                `json:"groups"`
	DefinitionContext              DefinitionContextEntity `json:"definitionContext"`
	PictureURL                     string                  `json:"pictureUrl,omitempty"`
	DisableMembershipNotifications bool                    `json:"disableMembershipNotifications"`
	PrimaryOwner                   *PrimaryOwnerEntity     `json:"primaryOwner,omitempty"`
	CreatedAt                      time.Time               `json:"createdAt"`
	UpdatedAt                      time.Time               `json:"updatedAt"`
	DeployedAt                     *time.Time              `json:"deployedAt,omitempty"`
}

// ToApiEntity converts an API model to its DTO. owner may be nil.
func ToApiEntity(api *model.Api, owner *model.PrimaryOwner) ApiEntity {
	return ApiEntity{
		ID:                api.ID,
		CrossID:           api.CrossID,
		EnvironmentID:     api.EnvironmentID,
		Name:              api.Name,
		ApiVersion:        api.Version,
		Description:       api.Description,
		DefinitionVersion: string(api.DefinitionVersion),
		Type:              string(api.Type),
		ContextPath:       api.ContextPath,
		State:             string(api.State),
		LifecycleState:    string(api.LifecycleState),
		Visibility:        string(api.Visibility),
		Tags:              nonNil(api.Tags),
		Labels:            nonNil(api.Labels),
		Categories:        nonNil(api.Categories),
		Groups:            nonNil(api.Groups),
		DefinitionContext: DefinitionContextEntity{
			Origin:   api.DefinitionContext.Origin,
			Mode:     api.DefinitionContext.Mode,
			SyncFrom: api.DefinitionContext.SyncFrom,
		},
		PictureURL:                     api.Picture,
		DisableMembershipNotifications: api.DisableMembershipNotifications,
		PrimaryOwner:                   ToPrimaryOwnerEntity(owner),
		CreatedAt:                      api.CreatedAt,
		UpdatedAt:                      api.UpdatedAt,
		DeployedAt:                     api.DeployedAt,
	}
}

// NewApiEntity is the request body for creating an API.
type NewApiEntity struct {
	Name              string   `json:"name"`
	ApiVersion        string   `json:"apiVersion"`
	Description       string   `json:"description,omitempty"`
	ContextPath       string   `json:"contextPath"`
	DefinitionVersion string   `json:"definitionVersion,omitempty"`
	Type              string   `json:"type,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Labels            []string `json:"labels,omitempty"`
	Categories        []string `json:"categories,omitempty"`
	Groups            []string `json:"groups,omitempty"`
	CreateDefaultPlan bool     `json:"createDefaultPlan,omitempty"`
}

// ToInput converts the request to service input.
func (e NewApiEntity) ToInput() service.CreateApiInput {
	return service.CreateApiInput{
		Name:              e.Name,
		Version:           e.ApiVersion,
		Description:       e.Description,
		ContextPath:       e.ContextPath,
		DefinitionVersion: model.DefinitionVersion(e.DefinitionVersion),
		Type:              model.ApiType(e.Type),
		Tags:              e.Tags,
		Labels:            e.Labels,
		Categories:        e.Categories,
		Groups:            e.Groups,
		CreateKeylessPlan: e.CreateDefaultPlan,
	}
}

// UpdateApiEntity is the request body for updating an API.
type UpdateApiEntity struct {
	Name                           string   `json:"name"`
	ApiVersion                     string   `json:"apiVersion"`
	Description                    string   `json:"description,omitempty"`
	Visibility                     string   `json:"visibility,omitempty"`
	LifecycleState                 string   `json:"lifecycleState,omitempty"`
	Tags                           []string `json:"tags,omitempty"`
	Labels                         []string `json:"labels,omitempty"`
	Categories                     []string `json:"categories,omitempty"`
	Groups                         []string `json:"groups,omitempty"`
	PictureURL                     string   `json:"pictureUrl,omitempty"`
	DisableMembershipNotifications bool     `json:"disableMembershipNotifications,omitempty"`
}

// ToInput converts the request to service input.
func (e UpdateApiEntity) ToInput() service.UpdateApiInput {
	return service.UpdateApiInput{
		Name:                           e.Name,
		Version:                        e.ApiVersion,
		Description:                    e.Description,
		Visibility:                     model.Visibility(e.Visibility),
		LifecycleState:                 model.ApiLifecycleState(e.LifecycleState),
		Tags:                           e.Tags,
		Labels:                         e.Labels,
		Categories:                     e.Categories,
		Groups:                         e.Groups,
		Picture:                        e.PictureURL,
		DisableMembershipNotifications: e.DisableMembershipNotifications,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
