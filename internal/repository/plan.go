package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/apimplane/apim/internal/model"
)

const planColumns = `id, cross_id, api_id, name, description, security, security_definition, selection_rule,
	status, validation, mode, plan_order, characteristics, excluded_groups, tags, comment_required,
	comment_message, general_conditions, created_at, updated_at, published_at, closed_at, need_redeploy_at`

// CreatePlan inserts a new plan.
func (r *Repository) CreatePlan(ctx context.Context, plan *model.Plan) error {
	query := `
		INSERT INTO plans (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23)
	`

	_, err := r.pool.Exec(ctx, query,
		plan.ID,
		plan.CrossID,
		plan.ApiID,
		plan.Name,
		plan.Description,
		plan.Security,
		plan.SecurityDefinition,
		plan.SelectionRule,
		plan.Status,
		plan.Validation,
		plan.Mode,
		plan.Order,
		pq.Array(nonNil(plan.Characteristics)),
		pq.Array(nonNil(plan.ExcludedGroups)),
		pq.Array(nonNil(plan.Tags)),
		plan.CommentRequired,
		plan.CommentMessage,
		plan.GeneralConditions,
		plan.CreatedAt,
		plan.UpdatedAt,
		plan.PublishedAt,
		plan.ClosedAt,
		plan.NeedRedeployAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

// GetPlan retrieves a plan by ID.
func (r *Repository) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`

	plan, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// ListPlansByApi returns every plan of an API ordered by plan order.
func (r *Repository) ListPlansByApi(ctx context.Context, apiID string) ([]*model.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE api_id = $1 ORDER BY plan_order, created_at`

	rows, err := r.pool.Query(ctx, query, apiID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

// UpdatePlan replaces every mutable column of a plan.
func (r *Repository) UpdatePlan(ctx context.Context, plan *model.Plan) error {
	query := `
		UPDATE plans SET
			cross_id = $2, name = $3, description = $4, security = $5, security_definition = $6,
			selection_rule = $7, status = $8, validation = $9, mode = $10, plan_order = $11,
			characteristics = $12, excluded_groups = $13, tags = $14, comment_required = $15,
			comment_message = $16, general_conditions = $17, updated_at = $18, published_at = $19,
			closed_at = $20, need_redeploy_at = $21
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		plan.ID,
		plan.CrossID,
		plan.Name,
		plan.Description,
		plan.Security,
		plan.SecurityDefinition,
		plan.SelectionRule,
		plan.Status,
		plan.Validation,
		plan.Mode,
		plan.Order,
		pq.Array(nonNil(plan.Characteristics)),
		pq.Array(nonNil(plan.ExcludedGroups)),
		pq.Array(nonNil(plan.Tags)),
		plan.CommentRequired,
		plan.CommentMessage,
		plan.GeneralConditions,
		plan.UpdatedAt,
		plan.PublishedAt,
		plan.ClosedAt,
		plan.NeedRedeployAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlanNotFound
	}

	return nil
}

// DeletePlan deletes a plan.
func (r *Repository) DeletePlan(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func scanPlan(row rowScanner) (*model.Plan, error) {
	var plan model.Plan
	var characteristics, excludedGroups, tags []string

	err := row.Scan(
		&plan.ID,
		&plan.CrossID,
		&plan.ApiID,
		&plan.Name,
		&plan.Description,
		&plan.Security,
		&plan.SecurityDefinition,
		&plan.SelectionRule,
		&plan.Status,
		&plan.Validation,
		&plan.Mode,
		&plan.Order,
		pq.Array(&characteristics),
		pq.Array(&excludedGroups),
		pq.Array(&tags),
		&plan.CommentRequired,
		&plan.CommentMessage,
		&plan.GeneralConditions,
		&plan.CreatedAt,
		&plan.UpdatedAt,
		&plan.PublishedAt,
		&plan.ClosedAt,
		&plan.NeedRedeployAt,
	)
	if err != nil {
		return nil, err
	}

	plan.Characteristics = characteristics
	plan.ExcludedGroups = excludedGroups
	plan.Tags = tags
	return &plan, nil
}
