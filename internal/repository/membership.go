package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/apimplane/apim/internal/model"
)

// CreateMembership inserts a new membership.
func (r *Repository) CreateMembership(ctx context.Context, m *model.Membership) error {
	query := `
		INSERT INTO memberships (id, member_id, member_type, reference_type, reference_id, role_id, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.MemberID,
		m.MemberType,
		m.ReferenceType,
		m.ReferenceID,
		m.RoleID,
		m.Source,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	return nil
}

// FindMemberships returns memberships matching q.
func (r *Repository) FindMemberships(ctx context.Context, q MembershipQuery) ([]*model.Membership, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if q.ReferenceType != "" {
		add("reference_type = $%d", q.ReferenceType)
	}
	if q.ReferenceID != "" {
		add("reference_id = $%d", q.ReferenceID)
	}
	if q.MemberID != "" {
		add("member_id = $%d", q.MemberID)
	}
	if q.MemberType != "" {
		add("member_type = $%d", q.MemberType)
	}
	if q.RoleID != "" {
		add("role_id = $%d", q.RoleID)
	}

	query := `SELECT id, member_id, member_type, reference_type, reference_id, role_id, source, created_at, updated_at
		FROM memberships`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(
			&m.ID,
			&m.MemberID,
			&m.MemberType,
			&m.ReferenceType,
			&m.ReferenceID,
			&m.RoleID,
			&m.Source,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	return memberships, nil
}

// UpdateMembership changes the member and role of a membership.
func (r *Repository) UpdateMembership(ctx context.Context, m *model.Membership) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE memberships SET member_id = $2, member_type = $3, role_id = $4, updated_at = $5 WHERE id = $1`,
		m.ID, m.MemberID, m.MemberType, m.RoleID, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// DeleteMembership deletes a membership by ID.
func (r *Repository) DeleteMembership(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// DeleteMembershipsByReference deletes every membership on a reference.
func (r *Repository) DeleteMembershipsByReference(ctx context.Context, refType model.ReferenceType, refID string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM memberships WHERE reference_type = $1 AND reference_id = $2`, refType, refID,
	); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	return nil
}

const roleColumns = `id, organization_id, scope, name, description, default_role, system, permissions, created_at, updated_at`

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role *model.Role) error {
	query := `INSERT INTO roles (` + roleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	permissions := role.Permissions
	if permissions == nil {
		permissions = map[string][]string{}
	}

	_, err := r.pool.Exec(ctx, query,
		role.ID,
		role.OrganizationID,
		role.Scope,
		role.Name,
		role.Description,
		role.DefaultRole,
		role.System,
		permissions,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by ID.
func (r *Repository) GetRole(ctx context.Context, id string) (*model.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// FindRole retrieves a role by organization, scope and name.
func (r *Repository) FindRole(ctx context.Context, organizationID string, scope model.RoleScope, name string) (*model.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE organization_id = $1 AND scope = $2 AND name = $3`,
		organizationID, scope, name,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	return role, nil
}

// ListRoles returns every role of an organization.
func (r *Repository) ListRoles(ctx context.Context, organizationID string) ([]*model.Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE organization_id = $1 ORDER BY scope, name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*model.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}

func scanRole(row rowScanner) (*model.Role, error) {
	var role model.Role
	err := row.Scan(
		&role.ID,
		&role.OrganizationID,
		&role.Scope,
		&role.Name,
		&role.Description,
		&role.DefaultRole,
		&role.System,
		&role.Permissions,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &role, nil
}
