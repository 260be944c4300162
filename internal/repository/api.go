package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/apimplane/apim/internal/model"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const apiColumns = `id, cross_id, environment_id, name, version, description, definition_version, type,
	context_path, state, lifecycle_state, visibility, tags, labels, categories, groups,
	origin, mode, sync_from, picture, disable_membership_notifications, created_at, updated_at, deployed_at`

// CreateApi inserts a new API.
func (r *Repository) CreateApi(ctx context.Context, api *model.Api) error {
	query := `
		INSERT INTO apis (` + apiColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := r.pool.Exec(ctx, query,
		api.ID,
		api.CrossID,
		api.EnvironmentID,
		api.Name,
		api.Version,
		api.Description,
		api.DefinitionVersion,
		api.Type,
		api.ContextPath,
		api.State,
		api.LifecycleState,
		api.Visibility,
		pq.Array(nonNil(api.Tags)),
		pq.Array(nonNil(api.Labels)),
		pq.Array(nonNil(api.Categories)),
		pq.Array(nonNil(api.Groups)),
		api.DefinitionContext.Origin,
		api.DefinitionContext.Mode,
		api.DefinitionContext.SyncFrom,
		api.Picture,
		api.DisableMembershipNotifications,
		api.CreatedAt,
		api.UpdatedAt,
		api.DeployedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create api: %w", err)
	}

	return nil
}

// GetApi retrieves an API by ID.
func (r *Repository) GetApi(ctx context.Context, id string) (*model.Api, error) {
	query := `SELECT ` + apiColumns + ` FROM apis WHERE id = $1`

	api, err := scanApi(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApiNotFound
		}
		return nil, fmt.Errorf("failed to get api: %w", err)
	}
	return api, nil
}

// GetApiByCrossID retrieves an API by its cross-environment identifier.
func (r *Repository) GetApiByCrossID(ctx context.Context, environmentID, crossID string) (*model.Api, error) {
	query := `SELECT ` + apiColumns + ` FROM apis WHERE environment_id = $1 AND cross_id = $2`

	api, err := scanApi(r.pool.QueryRow(ctx, query, environmentID, crossID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApiNotFound
		}
		return nil, fmt.Errorf("failed to get api by cross id: %w", err)
	}
	return api, nil
}

// ListApis returns a page of APIs matching q and the total match count.
func (r *Repository) ListApis(ctx context.Context, q ApiQuery) ([]*model.Api, int, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if q.EnvironmentID != "" {
		add("environment_id = $%d", q.EnvironmentID)
	}
	if q.Name != "" {
		add("name ILIKE $%d", "%"+q.Name+"%")
	}
	if q.Visibility != "" {
		add("visibility = $%d", q.Visibility)
	}
	if q.LifecycleState != "" {
		add("lifecycle_state = $%d", q.LifecycleState)
	}
	if len(q.IDs) > 0 {
		add("id = ANY($%d)", pq.Array(q.IDs))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM apis`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count apis: %w", err)
	}

	limit, offset := pageOffset(q.Page, q.Size)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM apis%s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		apiColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list apis: %w", err)
	}
	defer rows.Close()

	var apis []*model.Api
	for rows.Next() {
		api, err := scanApi(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan api: %w", err)
		}
		apis = append(apis, api)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating apis: %w", err)
	}

	return apis, total, nil
}

// UpdateApi replaces every mutable column of an API.
func (r *Repository) UpdateApi(ctx context.Context, api *model.Api) error {
	query := `
		UPDATE apis SET
			cross_id = $2, name = $3, version = $4, description = $5, definition_version = $6, type = $7,
			context_path = $8, state = $9, lifecycle_state = $10, visibility = $11, tags = $12,
			labels = $13, categories = $14, groups = $15, origin = $16, mode = $17, sync_from = $18,
			picture = $19, disable_membership_notifications = $20, updated_at = $21, deployed_at = $22
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		api.ID,
		api.CrossID,
		api.Name,
		api.Version,
		api.Description,
		api.DefinitionVersion,
		api.Type,
		api.ContextPath,
		api.State,
		api.LifecycleState,
		api.Visibility,
		pq.Array(nonNil(api.Tags)),
		pq.Array(nonNil(api.Labels)),
		pq.Array(nonNil(api.Categories)),
		pq.Array(nonNil(api.Groups)),
		api.DefinitionContext.Origin,
		api.DefinitionContext.Mode,
		api.DefinitionContext.SyncFrom,
		api.Picture,
		api.DisableMembershipNotifications,
		api.UpdatedAt,
		api.DeployedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to update api: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrApiNotFound
	}

	return nil
}

// DeleteApi deletes an API. Plans are removed by cascade.
func (r *Repository) DeleteApi(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM apis WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrApiNotFound
	}
	return nil
}

func scanApi(row rowScanner) (*model.Api, error) {
	var api model.Api
	var tags, labels, categories, groups []string

	err := row.Scan(
		&api.ID,
		&api.CrossID,
		&api.EnvironmentID,
		&api.Name,
		&api.Version,
		&api.Description,
		&api.DefinitionVersion,
		&api.Type,
		&api.ContextPath,
		&api.State,
		&api.LifecycleState,
		&api.Visibility,
		pq.Array(&tags),
		pq.Array(&labels),
		pq.Array(&categories),
		pq.Array(&groups),
		&api.DefinitionContext.Origin,
		&api.DefinitionContext.Mode,
		&api.DefinitionContext.SyncFrom,
		&api.Picture,
		&api.DisableMembershipNotifications,
		&api.CreatedAt,
		&api.UpdatedAt,
		&api.DeployedAt,
	)
	if err != nil {
		return nil, err
	}

	api.Tags = tags
	api.Labels = labels
	api.Categories = categories
	api.Groups = groups
	return &api, nil
}

// nonNil turns a nil slice into an empty one so NOT NULL array columns accept it.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
