package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/apimplane/apim/internal/auth"
	"github.com/apimplane/apim/internal/model"
)

// DefaultMinAuthDuration pads every authentication to a constant time.
const DefaultMinAuthDuration = 200 * time.Millisecond

// TokenLookup finds management tokens during authentication.
type TokenLookup interface {
	GetTokensByPrefix(ctx context.Context, prefix string) ([]*model.Token, error)
	UpdateTokenLastUsed(ctx context.Context, id string) error
}

// AuthCache caches resolved auth contexts by token hash.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Tokens TokenLookup
	// Cache is optional. Leave it nil rather than wrapping a nil pointer.
	Cache AuthCache
	// MinDuration is the minimum time spent per authentication.
	MinDuration time.Duration
}

// Auth returns a middleware that authenticates management requests with a
// personal token and injects the auth context into the request.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MinDuration > 0 {
				start := time.Now()
				defer func() {
					if elapsed := time.Since(start); elapsed < cfg.MinDuration {
						time.Sleep(cfg.MinDuration - elapsed)
					}
				}()
			}

			authCtx, reason, cacheHit := authenticate(r, cfg)
			if authCtx == nil {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing token")
				return
			}

			cfg.Logger.Debug("authentication successful",
				slog.String("token_id", authCtx.TokenID),
				slog.String("token_prefix", authCtx.TokenPrefix),
				slog.String("user_id", authCtx.UserID),
				slog.Bool("cache_hit", cacheHit),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(r.Context(), authCtx)))
		})
	}
}

func authenticate(r *http.Request, cfg AuthConfig) (*model.AuthContext, string, bool) {
	token := extractToken(r)
	if token == "" {
		return nil, "missing_token", false
	}
	parsed, err := auth.ParseToken(token)
	if err != nil {
		return nil, "invalid_format", false
	}

	ctx := r.Context()
	cacheKey := auth.QuickHash(token)
	if cfg.Cache != nil {
		if cached, _ := cfg.Cache.GetAuthContext(ctx, cacheKey); cached != nil {
			return cached, "", true
		}
	}

	candidates, err := cfg.Tokens.GetTokensByPrefix(ctx, parsed.Prefix)
	if err != nil {
		cfg.Logger.Error("token lookup failed",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(ctx)),
		)
		return nil, "lookup_error", false
	}

	// Prefixes may collide, so every candidate is verified.
	var matched *model.Token
	for _, t := range candidates {
		if ok, err := auth.VerifySecret(token, t.TokenHash); err == nil && ok {
			matched = t
			break
		}
	}
	if matched == nil || matched.IsRevoked() {
		return nil, "invalid_token", false
	}

	authCtx := &model.AuthContext{
		TokenID:        matched.ID,
		TokenPrefix:    matched.TokenPrefix,
		UserID:         matched.UserID,
		OrganizationID: matched.OrganizationID,
		Scopes:         matched.Scopes,
		RateLimitTier:  matched.RateLimitTier,
	}
	if cfg.Cache != nil {
		if err := cfg.Cache.SetAuthContext(ctx, cacheKey, authCtx); err != nil {
			cfg.Logger.Warn("auth cache write failed", slog.String("error", err.Error()))
		}
	}

	go func(id string) {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = cfg.Tokens.UpdateTokenLastUsed(bg, id)
	}(matched.ID)

	return authCtx, "", false
}

// extractToken reads "Authorization: Bearer <token>" and falls back to
// the X-Gravitee-Token header.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get(TokenHeader)
}

// TokenHeader is the alternative header carrying a management token.
const TokenHeader = "X-Gravitee-Token"
