package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// ErrEmptyCRD is returned when a resource body has no API definition.
var ErrEmptyCRD = errors.New("resource has no api definition")

// ApiCRDEntity is an API declared as a Kubernetes custom resource.
type ApiCRDEntity struct {
	CrossID           string                   `json:"crossId" yaml:"crossId"`
	Name              string                   `json:"name" yaml:"name"`
	Version           string                   `json:"version" yaml:"version"`
	Description       string                   `json:"description,omitempty" yaml:"description,omitempty"`
	ContextPath       string                   `json:"contextPath" yaml:"contextPath"`
	DefinitionVersion string                   `json:"definitionVersion,omitempty" yaml:"definitionVersion,omitempty"`
	Type              string                   `json:"type,omitempty" yaml:"type,omitempty"`
	State             string                   `json:"state,omitempty" yaml:"state,omitempty"`
	LifecycleState    string                   `json:"lifecycleState,omitempty" yaml:"lifecycleState,omitempty"`
	Visibility        string                   `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Tags              []string                 `json:"tags,omitempty" yaml:"tags,omitempty"`
	Labels            []string                 `json:"labels,omitempty" yaml:"labels,omitempty"`
	Categories        []string                 `json:"categories,omitempty" yaml:"categories,omitempty"`
	Groups            []string                 `json:"groups,omitempty" yaml:"groups,omitempty"`
	DefinitionContext *DefinitionContextEntity `json:"definitionContext,omitempty" yaml:"definitionContext,omitempty"`
	Plans             map[string]PlanCRDEntity `json:"plans,omitempty" yaml:"plans,omitempty"`
	Members           []MemberCRDEntity        `json:"members,omitempty" yaml:"members,omitempty"`
}

// PlanCRDEntity is a plan of an ApiCRDEntity, keyed by name in the resource.
type PlanCRDEntity struct {
	CrossID           string   `json:"crossId,omitempty" yaml:"crossId,omitempty"`
	Name              string   `json:"name,omitempty" yaml:"name,omitempty"`
	Description       string   `json:"description,omitempty" yaml:"description,omitempty"`
	Security          string   `json:"security" yaml:"security"`
	SecurityConfig    string   `json:"securityDefinition,omitempty" yaml:"securityDefinition,omitempty"`
	SelectionRule     string   `json:"selectionRule,omitempty" yaml:"selectionRule,omitempty"`
	Status            string   `json:"status,omitempty" yaml:"status,omitempty"`
	Validation        string   `json:"validation,omitempty" yaml:"validation,omitempty"`
	Mode              string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Characteristics   []string `json:"characteristics,omitempty" yaml:"characteristics,omitempty"`
	ExcludedGroups    []string `json:"excludedGroups,omitempty" yaml:"excludedGroups,omitempty"`
	Tags              []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	CommentRequired   bool     `json:"commentRequired,omitempty" yaml:"commentRequired,omitempty"`
	CommentMessage    string   `json:"commentMessage,omitempty" yaml:"commentMessage,omitempty"`
	GeneralConditions string   `json:"generalConditions,omitempty" yaml:"generalConditions,omitempty"`
}

// MemberCRDEntity is a membership declared in a resource.
type MemberCRDEntity struct {
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	SourceID string `json:"sourceId" yaml:"sourceId"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Role     string `json:"role,omitempty" yaml:"role,omitempty"`
}

// crdEnvelope is the full custom resource as applied with kubectl.
type crdEnvelope struct {
	Kind string `json:"kind" yaml:"kind"`
	Metadata struct {
		Name string `json:"name" yaml:"name"`
		UID  string `json:"uid" yaml:"uid"`
	} `json:"metadata" yaml:"metadata"`
	Spec *ApiCRDEntity `json:"spec" yaml:"spec"`
}

// DecodeApiCRD decodes a resource body. YAML is used when the content type
// says so, JSON otherwise. Both the bare definition and the full resource
// with a spec are accepted; the resource uid then defaults the cross id.
func DecodeApiCRD(contentType string, body []byte) (*ApiCRDEntity, error) {
	unmarshal := json.Unmarshal
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		unmarshal = yaml.Unmarshal
	}

	var envelope crdEnvelope
	if err := unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if envelope.Spec != nil {
		spec := envelope.Spec
		if spec.CrossID == "" {
			spec.CrossID = envelope.Metadata.UID
		}
		if spec.Name == "" {
			spec.Name = envelope.Metadata.Name
		}
		return spec, nil
	}

	var entity ApiCRDEntity
	if err := unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if entity.Name == "" && entity.CrossID == "" {
		return nil, ErrEmptyCRD
	}
	return &entity, nil
}

// ToInput converts the resource to service input.
func (e ApiCRDEntity) ToInput() service.ImportCRDInput {
	plans := make(map[string]service.CreatePlanInput, len(e.Plans))
	for key, p := range e.Plans {
		plans[key] = service.CreatePlanInput{
			CrossID:            p.CrossID,
			Name:               p.Name,
			Description:        p.Description,
			Security:           model.PlanSecurity(strings.ToUpper(p.Security)),
			SecurityDefinition: p.SecurityConfig,
			SelectionRule:      p.SelectionRule,
			Status:             model.PlanStatus(strings.ToUpper(p.Status)),
			Validation:         model.PlanValidation(strings.ToUpper(p.Validation)),
			Mode:               model.PlanMode(strings.ToUpper(p.Mode)),
			Characteristics:    p.Characteristics,
			ExcludedGroups:     p.ExcludedGroups,
			Tags:               p.Tags,
			CommentRequired:    p.CommentRequired,
			CommentMessage:     p.CommentMessage,
			GeneralConditions:  p.GeneralConditions,
		}
	}

	members := make([]service.CRDMember, 0, len(e.Members))
	for _, m := range e.Members {
		members = append(members, service.CRDMember{
			ID:   m.SourceID,
			Type: model.MemberType(strings.ToUpper(m.Type)),
			Role: strings.ToUpper(m.Role),
		})
	}

	return service.ImportCRDInput{
		CrossID:           e.CrossID,
		Name:              e.Name,
		Version:           e.Version,
		Description:       e.Description,
		ContextPath:       e.ContextPath,
		DefinitionVersion: model.DefinitionVersion(strings.ToUpper(e.DefinitionVersion)),
		Type:              model.ApiType(strings.ToUpper(e.Type)),
		State:             model.ApiState(strings.ToUpper(e.State)),
		LifecycleState:    model.ApiLifecycleState(strings.ToUpper(e.LifecycleState)),
		Visibility:        model.Visibility(strings.ToUpper(e.Visibility)),
		Tags:              e.Tags,
		Labels:            e.Labels,
		Categories:        e.Categories,
		Groups:            e.Groups,
		Plans:             plans,
		Members:           members,
	}
}
