package model

import (
	"slices"
	"time"
)

// Scope constants for management token authorization.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// RateLimitTier constants.
const (
	TierStandard   = "standard"
	TierAutomation = "automation"
	TierUnlimited  = "unlimited"
)

// RateLimitConfig defines rate limit parameters per tier.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// TierConfigs maps tier names to their rate limit configurations.
// A zero RequestsPerMinute disables limiting.
var TierConfigs = map[string]RateLimitConfig{
	TierStandard:   {RequestsPerMinute: 120, Burst: 20},
	TierAutomation: {RequestsPerMinute: 1200, Burst: 100},
	TierUnlimited:  {RequestsPerMinute: 0, Burst: 0},
}

// Token is a management API token held by a user or an automation.
type Token struct {
	ID             string
	UserID         string
	OrganizationID string
	TokenHash      string
	TokenPrefix    string
	Scopes         []string
	RateLimitTier  string
	Name           string
	RevokedAt      *time.Time
	LastUsedAt     *time.Time
	CreatedAt      time.Time
}

// IsRevoked returns true if the token has been revoked.
func (t *Token) IsRevoked() bool {
	return t.RevokedAt != nil
}

// HasScope checks if the token has a specific scope.
// Admin scope implies all other scopes.
func (t *Token) HasScope(scope string) bool {
	if slices.Contains(t.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(t.Scopes, scope)
}

// GetRateLimitConfig returns the rate limit configuration for this token.
func (t *Token) GetRateLimitConfig() RateLimitConfig {
	if config, ok := TierConfigs[t.RateLimitTier]; ok {
		return config
	}
	return TierConfigs[TierStandard]
}

// AuthContext holds the authenticated caller of a management request.
// It is injected into the request context by the auth middleware.
type AuthContext struct {
	TokenID        string
	TokenPrefix    string
	UserID         string
	OrganizationID string
	Scopes         []string
	RateLimitTier  string
}

// HasScope checks if the auth context has a specific scope.
func (a *AuthContext) HasScope(scope string) bool {
	if slices.Contains(a.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(a.Scopes, scope)
}
