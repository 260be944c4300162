package auth

import (
	"context"
	"testing"

	"github.com/apimplane/apim/internal/model"
)

func TestPrincipal(t *testing.T) {
	ctx := context.Background()
	if AuthFromContext(ctx) != nil {
		t.Fatal("empty context should carry no caller")
	}
	if org, user := Principal(ctx); org != "" || user != "" {
		t.Fatalf("anonymous principal = %q/%q", org, user)
	}

	ac := &model.AuthContext{TokenID: "tok-1", UserID: "user-1", OrganizationID: "DEFAULT"}
	ctx = ContextWithAuth(ctx, ac)

	if got := AuthFromContext(ctx); got != ac {
		t.Errorf("AuthFromContext = %+v", got)
	}
	org, user := Principal(ctx)
	if org != "DEFAULT" || user != "user-1" {
		t.Errorf("Principal = %q/%q, want DEFAULT/user-1", org, user)
	}
}
