package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/apimplane/apim/internal/auth"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// TokenInvalidator evicts cached authentications of a token.
type TokenInvalidator interface {
	InvalidateToken(ctx context.Context, tokenID string) error
}

// TokenService manages the personal tokens used against the management API.
type TokenService struct {
	store       repository.TokenStore
	invalidator TokenInvalidator
	logger      *slog.Logger
}

// NewTokenService creates a new TokenService.
func NewTokenService(store repository.TokenStore, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{store: store, logger: logger.With("component", "token_service")}
}

// WithInvalidator makes revocations evict cached authentications.
func (s *TokenService) WithInvalidator(inv TokenInvalidator) *TokenService {
	s.invalidator = inv
	return s
}

func (s *TokenService) invalidate(ctx context.Context, tokenID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateToken(ctx, tokenID); err != nil {
		s.logger.Warn("failed to evict cached token", slog.String("token_id", tokenID), slog.String("error", err.Error()))
	}
}

// CreateTokenInput defines input for issuing a token.
type CreateTokenInput struct {
	Name          string
	Scopes        []string
	RateLimitTier string
}

// IssuedToken is a stored token with its plaintext, which is only
// available at creation time.
type IssuedToken struct {
	Token     *model.Token
	Plaintext string
}

// Create issues a token for the calling user. Scopes default to read and
// the tier to standard.
func (s *TokenService) Create(ctx context.Context, ec ExecutionContext, in CreateTokenInput) (*IssuedToken, error) {
	for _, scope := range in.Scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidScope, scope)
		}
	}
	if len(in.Scopes) == 0 {
		in.Scopes = []string{model.ScopeRead}
	}
	if in.RateLimitTier == "" {
		in.RateLimitTier = model.TierStandard
	}
	if _, ok := model.TierConfigs[in.RateLimitTier]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTier, in.RateLimitTier)
	}

	return s.issue(ctx, &model.Token{
		UserID:         ec.UserID,
		OrganizationID: ec.OrganizationID,
		Scopes:         in.Scopes,
		RateLimitTier:  in.RateLimitTier,
		Name:           in.Name,
	})
}

func (s *TokenService) issue(ctx context.Context, template *model.Token) (*IssuedToken, error) {
	generated, err := auth.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	token := *template
	token.ID = newID()
	token.TokenHash = generated.Hash
	token.TokenPrefix = generated.Prefix
	token.RevokedAt = nil
	token.LastUsedAt = nil
	token.CreatedAt = nowFunc()

	if err := s.store.CreateToken(ctx, &token); err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	s.logger.Info("token created",
		slog.String("token_id", token.ID),
		slog.String("token_prefix", token.TokenPrefix),
		slog.String("user_id", token.UserID),
	)
	return &IssuedToken{Token: &token, Plaintext: generated.Plaintext}, nil
}

// List returns the tokens of the calling user, revoked ones included.
func (s *TokenService) List(ctx context.Context, ec ExecutionContext) ([]*model.Token, error) {
	return s.store.ListTokensByUserID(ctx, ec.UserID)
}

// Revoke revokes a token of the calling user. Tokens of other users are
// reported as missing.
func (s *TokenService) Revoke(ctx context.Context, ec ExecutionContext, tokenID string) error {
	if _, err := s.ownedToken(ctx, ec, tokenID); err != nil {
		return err
	}
	if err := s.store.RevokeToken(ctx, tokenID); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("revoke token: %w", err)
	}
	s.invalidate(ctx, tokenID)

	s.logger.Info("token revoked", slog.String("token_id", tokenID), slog.String("user_id", ec.UserID))
	return nil
}

// Rotate issues a replacement with the same name, scopes and tier, then
// revokes the old token.
func (s *TokenService) Rotate(ctx context.Context, ec ExecutionContext, tokenID string) (*IssuedToken, error) {
	old, err := s.ownedToken(ctx, ec, tokenID)
	if err != nil {
		return nil, err
	}

	issued, err := s.issue(ctx, old)
	if err != nil {
		return nil, err
	}
	if err := s.store.RevokeToken(ctx, old.ID); err != nil {
		// The replacement exists already, so the rotation still succeeds.
		s.logger.Error("failed to revoke rotated token", slog.String("token_id", old.ID), slog.String("error", err.Error()))
	}
	s.invalidate(ctx, old.ID)
	return issued, nil
}

func (s *TokenService) ownedToken(ctx context.Context, ec ExecutionContext, tokenID string) (*model.Token, error) {
	token, err := s.store.GetTokenByID(ctx, tokenID)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if token.UserID != ec.UserID || token.IsRevoked() {
		return nil, ErrTokenNotFound
	}
	return token, nil
}
