package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apimplane/apim/internal/model"
)

const (
	authCachePrefix = "auth:ctx:"
	// authIndexPrefix maps a token ID to its cache key so revocation can
	// evict an entry without the plaintext token.
	authIndexPrefix = "auth:tok:"
	authCacheTTL    = 5 * time.Minute
)

// CachedAuthContext represents auth context stored in Redis.
type CachedAuthContext struct {
	TokenID        string   `json:"token_id"`
	TokenPrefix    string   `json:"token_prefix"`
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id"`
	Scopes         []string `json:"scopes"`
	RateLimitTier  string   `json:"rate_limit_tier"`
}

// GetAuthContext retrieves a cached auth context by cache key.
// Returns nil if not found (cache miss).
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authCachePrefix+cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var cached CachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted entry, treat as miss.
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		TokenID:        cached.TokenID,
		TokenPrefix:    cached.TokenPrefix,
		UserID:         cached.UserID,
		OrganizationID: cached.OrganizationID,
		Scopes:         cached.Scopes,
		RateLimitTier:  cached.RateLimitTier,
	}, nil
}

// SetAuthContext caches an auth context.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	data, err := json.Marshal(CachedAuthContext{
		TokenID:        auth.TokenID,
		TokenPrefix:    auth.TokenPrefix,
		UserID:         auth.UserID,
		OrganizationID: auth.OrganizationID,
		Scopes:         auth.Scopes,
		RateLimitTier:  auth.RateLimitTier,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, authCachePrefix+cacheKey, data, authCacheTTL)
	pipe.Set(ctx, authIndexPrefix+auth.TokenID, cacheKey, authCacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateToken removes the cached auth context of a token.
// Used when a token is revoked or rotated.
func (c *Cache) InvalidateToken(ctx context.Context, tokenID string) error {
	cacheKey, err := c.client.Get(ctx, authIndexPrefix+tokenID).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get auth index: %w", err)
	}
	return c.client.Del(ctx, authCachePrefix+cacheKey, authIndexPrefix+tokenID).Err()
}
