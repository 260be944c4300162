package dto

import (
	"time"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// NewTokenEntity is the request body for issuing a management token.
type NewTokenEntity struct {
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes,omitempty"`
	RateLimitTier string   `json:"rateLimitTier,omitempty"`
}

// ToInput converts the request to service input.
func (e NewTokenEntity) ToInput() service.CreateTokenInput {
	return service.CreateTokenInput{Name: e.Name, Scopes: e.Scopes, RateLimitTier: e.RateLimitTier}
}

// TokenEntity describes a management token without its secret.
type TokenEntity struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Prefix        string     `json:"prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rateLimitTier"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ToTokenEntity converts a token model to its DTO.
func ToTokenEntity(t *model.Token) TokenEntity {
	return TokenEntity{
		ID:            t.ID,
		Name:          t.Name,
		Prefix:        t.TokenPrefix,
		Scopes:        nonNil(t.Scopes),
		RateLimitTier: t.RateLimitTier,
		LastUsedAt:    t.LastUsedAt,
		RevokedAt:     t.RevokedAt,
		CreatedAt:     t.CreatedAt,
	}
}

// IssuedTokenEntity is returned once on issue or rotation. Token is the
// plaintext secret and is never shown again.
type IssuedTokenEntity struct {
	TokenEntity
	Token string `json:"token"`
}

// ToIssuedTokenEntity converts a freshly issued token.
func ToIssuedTokenEntity(issued *service.IssuedToken) IssuedTokenEntity {
	return IssuedTokenEntity{TokenEntity: ToTokenEntity(issued.Token), Token: issued.Plaintext}
}
