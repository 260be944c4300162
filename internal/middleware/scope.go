package middleware

import (
	"net/http"
	"strings"

	"github.com/apimplane/apim/internal/auth"
	"github.com/apimplane/apim/internal/model"
)

// RequireScope lets the request through when the token carries any of the
// given scopes. It must run after Auth. An admin token passes every check.
func RequireScope(scopes ...string) func(http.Handler) http.Handler {
	want := strings.Join(scopes, " or ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := auth.AuthFromContext(r.Context())
			if caller == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			for _, scope := range scopes {
				if caller.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Token lacks the "+want+" scope")
		})
	}
}

// RequireRead guards the GET routes of the management API.
func RequireRead() func(http.Handler) http.Handler { return RequireScope(model.ScopeRead) }

// RequireWrite guards mutations of APIs, plans, subscriptions and members.
func RequireWrite() func(http.Handler) http.Handler { return RequireScope(model.ScopeWrite) }

// RequireAdmin guards deletion, ownership transfer, token management and
// the admin routes.
func RequireAdmin() func(http.Handler) http.Handler { return RequireScope(model.ScopeAdmin) }
