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

const subscriptionColumns = `id, api_id, plan_id, application_id, subscribed_by, status, request_message, reason,
	processed_by, starting_at, ending_at, processed_at, paused_at, closed_at, created_at, updated_at`

// CreateSubscription inserts a new subscription.
func (r *Repository) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.pool.Exec(ctx, query,
		sub.ID,
		sub.ApiID,
		sub.PlanID,
		sub.ApplicationID,
		sub.SubscribedBy,
		sub.Status,
		sub.RequestMessage,
		sub.Reason,
		sub.ProcessedBy,
		sub.StartingAt,
		sub.EndingAt,
		sub.ProcessedAt,
		sub.PausedAt,
		sub.ClosedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// GetSubscription retrieves a subscription by ID.
func (r *Repository) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns subscriptions matching q, newest first.
func (r *Repository) ListSubscriptions(ctx context.Context, q SubscriptionQuery) ([]*model.Subscription, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if q.ApiID != "" {
		add("api_id = $%d", q.ApiID)
	}
	if len(q.PlanIDs) > 0 {
		add("plan_id = ANY($%d)", pq.Array(q.PlanIDs))
	}
	if q.ApplicationID != "" {
		add("application_id = $%d", q.ApplicationID)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if q.EndingBefore != nil {
		add("ending_at IS NOT NULL AND ending_at <= $%d", *q.EndingBefore)
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subs, nil
}

// UpdateSubscription replaces every mutable column of a subscription.
func (r *Repository) UpdateSubscription(ctx context.Context, sub *model.Subscription) error {
	query := `
		UPDATE subscriptions SET
			status = $2, request_message = $3, reason = $4, processed_by = $5, starting_at = $6,
			ending_at = $7, processed_at = $8, paused_at = $9, closed_at = $10, updated_at = $11
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		sub.ID,
		sub.Status,
		sub.RequestMessage,
		sub.Reason,
		sub.ProcessedBy,
		sub.StartingAt,
		sub.EndingAt,
		sub.ProcessedAt,
		sub.PausedAt,
		sub.ClosedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	var sub model.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.ApiID,
		&sub.PlanID,
		&sub.ApplicationID,
		&sub.SubscribedBy,
		&sub.Status,
		&sub.RequestMessage,
		&sub.Reason,
		&sub.ProcessedBy,
		&sub.StartingAt,
		&sub.EndingAt,
		&sub.ProcessedAt,
		&sub.PausedAt,
		&sub.ClosedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const apiKeyColumns = `id, key, application_id, subscription, subscriptions, expire_at, revoked, revoked_at,
	paused, created_at, updated_at`

// CreateApiKey inserts a new consumer API key.
func (r *Repository) CreateApiKey(ctx context.Context, key *model.ApiKey) error {
	query := `
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.Key,
		key.ApplicationID,
		key.Subscription,
		pq.Array(nonNil(key.Subscriptions)),
		key.ExpireAt,
		key.Revoked,
		key.RevokedAt,
		key.Paused,
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}

	return nil
}

// ListApiKeys returns every consumer API key.
func (r *Repository) ListApiKeys(ctx context.Context) ([]*model.ApiKey, error) {
	return r.queryApiKeys(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at`)
}

// ListApiKeysBySubscription returns the keys bound to a subscription,
// through either the list column or the single-subscription column.
func (r *Repository) ListApiKeysBySubscription(ctx context.Context, subscriptionID string) ([]*model.ApiKey, error) {
	return r.queryApiKeys(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE $1 = ANY(subscriptions) OR subscription = $1 ORDER BY created_at`,
		subscriptionID)
}

// UpdateApiKey replaces every mutable column of a key.
func (r *Repository) UpdateApiKey(ctx context.Context, key *model.ApiKey) error {
	query := `
		UPDATE api_keys SET
			subscription = $2, subscriptions = $3, expire_at = $4, revoked = $5, revoked_at = $6,
			paused = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		key.ID,
		key.Subscription,
		pq.Array(nonNil(key.Subscriptions)),
		key.ExpireAt,
		key.Revoked,
		key.RevokedAt,
		key.Paused,
		key.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrApiKeyNotFound
	}

	return nil
}

func (r *Repository) queryApiKeys(ctx context.Context, query string, args ...any) ([]*model.ApiKey, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.ApiKey
	for rows.Next() {
		var key model.ApiKey
		var subscriptions []string
		if err := rows.Scan(
			&key.ID,
			&key.Key,
			&key.ApplicationID,
			&key.Subscription,
			pq.Array(&subscriptions),
			&key.ExpireAt,
			&key.Revoked,
			&key.RevokedAt,
			&key.Paused,
			&key.CreatedAt,
			&key.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		key.Subscriptions = subscriptions
		keys = append(keys, &key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}

	return keys, nil
}
