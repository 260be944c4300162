package upgrader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// Upgrader orders.
const (
	DefaultRolesOrder          = 100
	ApiKeySubscriptionsOrder   = 200
	AlertTriggerReferenceOrder = 300
	PlanOrderOrder             = 400
)

// CRUD permission letters.
var (
	permCRUD = []string{"C", "R", "U", "D"}
	permRU   = []string{"R", "U"}
	permR    = []string{"R"}
)

type roleTemplate struct {
	name        string
	description string
	defaultRole bool
	system      bool
	permissions map[string][]string
}

var defaultRoles = map[model.RoleScope][]roleTemplate{
	model.ReferenceAPI: {
		{name: model.RolePrimaryOwner, description: "API primary owner", system: true,
			permissions: map[string][]string{"DEFINITION": permCRUD, "PLAN": permCRUD, "SUBSCRIPTION": permCRUD, "MEMBER": permCRUD, "AUDIT": permR}},
		{name: model.RoleOwner, description: "API owner",
			permissions: map[string][]string{"DEFINITION": permRU, "PLAN": permCRUD, "SUBSCRIPTION": permCRUD, "MEMBER": permCRUD, "AUDIT": permR}},
		{name: model.RoleUser, description: "API consumer", defaultRole: true,
			permissions: map[string][]string{"DEFINITION": permR, "PLAN": permR}},
	},
	model.ReferenceApplication: {
		{name: model.RolePrimaryOwner, description: "Application primary owner", system: true,
			permissions: map[string][]string{"DEFINITION": permCRUD, "SUBSCRIPTION": permCRUD, "MEMBER": permCRUD}},
		{name: model.RoleOwner, description: "Application owner",
			permissions: map[string][]string{"DEFINITION": permRU, "SUBSCRIPTION": permCRUD, "MEMBER": permCRUD}},
		{name: model.RoleUser, description: "Application user", defaultRole: true,
			permissions: map[string][]string{"DEFINITION": permR, "SUBSCRIPTION": permR}},
	},
	model.ReferenceIntegration: {
		{name: model.RolePrimaryOwner, description: "Integration primary owner", system: true,
			permissions: map[string][]string{"DEFINITION": permCRUD, "MEMBER": permCRUD}},
		{name: model.RoleOwner, description: "Integration owner",
			permissions: map[string][]string{"DEFINITION": permRU, "MEMBER": permCRUD}},
		{name: model.RoleUser, description: "Integration user", defaultRole: true,
			permissions: map[string][]string{"DEFINITION": permR}},
	},
}

var roleScopes = []model.RoleScope{model.ReferenceAPI, model.ReferenceApplication, model.ReferenceIntegration}

// DefaultRolesUpgrader creates the PRIMARY_OWNER, OWNER and USER roles of
// each membership scope for an organization. Existing roles are kept.
type DefaultRolesUpgrader struct {
	store          repository.RoleStore
	organizationID string
	logger         *slog.Logger
}

// NewDefaultRolesUpgrader creates a DefaultRolesUpgrader.
func NewDefaultRolesUpgrader(store repository.RoleStore, organizationID string, logger *slog.Logger) *DefaultRolesUpgrader {
	return &DefaultRolesUpgrader{store: store, organizationID: organizationID, logger: logger}
}

func (u *DefaultRolesUpgrader) Name() string { return "DefaultRolesUpgrader" }
func (u *DefaultRolesUpgrader) Order() int   { return DefaultRolesOrder }

// Blocking reports true: memberships cannot be created without roles.
func (u *DefaultRolesUpgrader) Blocking() bool { return true }

func (u *DefaultRolesUpgrader) Upgrade(ctx context.Context) error {
	created := 0
	for _, scope := range roleScopes {
		for _, tmpl := range defaultRoles[scope] {
			_, err := u.store.FindRole(ctx, u.organizationID, scope, tmpl.name)
			if err == nil {
				continue
			}
			if !errors.Is(err, repository.ErrRoleNotFound) {
				return fmt.Errorf("find role %s/%s: %w", scope, tmpl.name, err)
			}

			now := time.Now().UTC()
			role := &model.Role{
				ID:             ulid.Make().String(),
				Scope:          scope,
				Name:           tmpl.name,
				OrganizationID: u.organizationID,
				Description:    tmpl.description,
				DefaultRole:    tmpl.defaultRole,
				System:         tmpl.system,
				Permissions:    tmpl.permissions,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := u.store.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("create role %s/%s: %w", scope, tmpl.name, err)
			}
			created++
		}
	}
	u.logger.Info("default roles ensured", "organization_id", u.organizationID, "created", created)
	return nil
}
