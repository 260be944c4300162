package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/apimplane/apim/internal/model"
)

const tokenColumns = `id, user_id, organization_id, token_hash, token_prefix, scopes, rate_limit_tier, name,
	revoked_at, last_used_at, created_at`

// CreateToken inserts a new management token.
func (r *Repository) CreateToken(ctx context.Context, token *model.Token) error {
	query := `
		INSERT INTO management_tokens (id, user_id, organization_id, token_hash, token_prefix, scopes, rate_limit_tier, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.OrganizationID,
		token.TokenHash,
		token.TokenPrefix,
		pq.Array(token.Scopes),
		token.RateLimitTier,
		token.Name,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

// GetTokenByID retrieves a management token by its ID.
func (r *Repository) GetTokenByID(ctx context.Context, id string) (*model.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM management_tokens WHERE id = $1`

	token, err := scanToken(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	return token, nil
}

// GetTokensByPrefix retrieves all active tokens matching a prefix.
// Used during authentication to find candidate tokens for verification.
func (r *Repository) GetTokensByPrefix(ctx context.Context, prefix string) ([]*model.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM management_tokens WHERE token_prefix = $1 AND revoked_at IS NULL`
	return r.queryTokens(ctx, query, prefix)
}

// ListTokensByUserID retrieves all tokens of a user, newest first.
func (r *Repository) ListTokensByUserID(ctx context.Context, userID string) ([]*model.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM management_tokens WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryTokens(ctx, query, userID)
}

// RevokeToken revokes a token by setting revoked_at.
func (r *Repository) RevokeToken(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE management_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// UpdateTokenLastUsed updates the last_used_at timestamp.
// Should be called asynchronously after successful authentication.
func (r *Repository) UpdateTokenLastUsed(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE management_tokens SET last_used_at = $2 WHERE id = $1`, id, time.Now(),
	); err != nil {
		return fmt.Errorf("failed to update token last used: %w", err)
	}
	return nil
}

func (r *Repository) queryTokens(ctx context.Context, query string, args ...any) ([]*model.Token, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*model.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}

	return tokens, nil
}

func scanToken(row rowScanner) (*model.Token, error) {
	var token model.Token
	var scopes []string

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.OrganizationID,
		&token.TokenHash,
		&token.TokenPrefix,
		pq.Array(&scopes),
		&token.RateLimitTier,
		&token.Name,
		&token.RevokedAt,
		&token.LastUsedAt,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	token.Scopes = scopes
	return &token, nil
}
