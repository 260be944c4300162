package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/apimplane/apim/internal/model"
)

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, organization_id, email, firstname, lastname, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.OrganizationID,
		user.Email,
		user.Firstname,
		user.Lastname,
		user.Source,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by ID.
func (r *Repository) GetUser(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT id, organization_id, email, firstname, lastname, source, created_at
		FROM users
		WHERE id = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.OrganizationID,
		&user.Email,
		&user.Firstname,
		&user.Lastname,
		&user.Source,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return &user, nil
}

// CreateGroup inserts a new group.
func (r *Repository) CreateGroup(ctx context.Context, group *model.Group) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO groups (id, environment_id, name, api_primary_owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, group.ID, group.EnvironmentID, group.Name, group.ApiPrimaryOwner, group.CreatedAt, group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (r *Repository) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	err := r.pool.QueryRow(ctx, `
		SELECT id, environment_id, name, api_primary_owner, created_at, updated_at
		FROM groups
		WHERE id = $1
	`, id).Scan(
		&group.ID,
		&group.EnvironmentID,
		&group.Name,
		&group.ApiPrimaryOwner,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

// CreateApplication inserts a new application.
func (r *Repository) CreateApplication(ctx context.Context, app *model.Application) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO applications (id, environment_id, name, description, status, groups, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		app.ID,
		app.EnvironmentID,
		app.Name,
		app.Description,
		app.Status,
		pq.Array(nonNil(app.Groups)),
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// GetApplication retrieves an application by ID.
func (r *Repository) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	var app model.Application
	var groups []string
	err := r.pool.QueryRow(ctx, `
		SELECT id, environment_id, name, description, status, groups, created_at, updated_at
		FROM applications
		WHERE id = $1
	`, id).Scan(
		&app.ID,
		&app.EnvironmentID,
		&app.Name,
		&app.Description,
		&app.Status,
		pq.Array(&groups),
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	app.Groups = groups
	return &app, nil
}

// CreateIntegration inserts a new integration.
func (r *Repository) CreateIntegration(ctx context.Context, integration *model.Integration) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO integrations (id, environment_id, name, provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		integration.ID,
		integration.EnvironmentID,
		integration.Name,
		integration.Provider,
		integration.CreatedAt,
		integration.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}
	return nil
}

// GetIntegration retrieves an integration by ID.
func (r *Repository) GetIntegration(ctx context.Context, id string) (*model.Integration, error) {
	var integration model.Integration
	err := r.pool.QueryRow(ctx, `
		SELECT id, environment_id, name, provider, created_at, updated_at
		FROM integrations
		WHERE id = $1
	`, id).Scan(
		&integration.ID,
		&integration.EnvironmentID,
		&integration.Name,
		&integration.Provider,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return &integration, nil
}

// CreateAlertTrigger inserts a new alert trigger.
func (r *Repository) CreateAlertTrigger(ctx context.Context, trigger *model.AlertTrigger) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO alert_triggers (id, name, reference_type, reference_id, environment_id, severity, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		trigger.ID,
		trigger.Name,
		trigger.ReferenceType,
		trigger.ReferenceID,
		trigger.EnvironmentID,
		trigger.Severity,
		trigger.Enabled,
		trigger.CreatedAt,
		trigger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert trigger: %w", err)
	}
	return nil
}

// ListAlertTriggers returns every alert trigger.
func (r *Repository) ListAlertTriggers(ctx context.Context) ([]*model.AlertTrigger, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, reference_type, reference_id, environment_id, severity, enabled, created_at, updated_at
		FROM alert_triggers
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert triggers: %w", err)
	}
	defer rows.Close()

	var triggers []*model.AlertTrigger
	for rows.Next() {
		var t model.AlertTrigger
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.ReferenceType,
			&t.ReferenceID,
			&t.EnvironmentID,
			&t.Severity,
			&t.Enabled,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert trigger: %w", err)
		}
		triggers = append(triggers, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert triggers: %w", err)
	}
	return triggers, nil
}

// UpdateAlertTrigger replaces the reference columns of an alert trigger.
func (r *Repository) UpdateAlertTrigger(ctx context.Context, trigger *model.AlertTrigger) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE alert_triggers
		SET name = $2, reference_type = $3, reference_id = $4, environment_id = $5, severity = $6,
			enabled = $7, updated_at = $8
		WHERE id = $1
	`,
		trigger.ID,
		trigger.Name,
		trigger.ReferenceType,
		trigger.ReferenceID,
		trigger.EnvironmentID,
		trigger.Severity,
		trigger.Enabled,
		trigger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert trigger: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlertTriggerNotFound
	}
	return nil
}
