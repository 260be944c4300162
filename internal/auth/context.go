package auth

import (
	"context"

	"github.com/apimplane/apim/internal/model"
)

type ctxKey struct{}

// ContextWithAuth attaches the authenticated management token to ctx.
func ContextWithAuth(ctx context.Context, ac *model.AuthContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// AuthFromContext returns the caller set by the Auth middleware, or nil on
// public routes.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	ac, _ := ctx.Value(ctxKey{}).(*model.AuthContext)
	return ac
}

// Principal returns the organization and user acting in ctx. Both are empty
// for anonymous callers.
func Principal(ctx context.Context) (organizationID, userID string) {
	if ac := AuthFromContext(ctx); ac != nil {
		return ac.OrganizationID, ac.UserID
	}
	return "", ""
}
