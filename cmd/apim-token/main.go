// Command apim-token issues a management token straight into the database.
// It is how the first admin token of an installation is created.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
	"github.com/apimplane/apim/internal/service"
)

type output struct {
	UserID      string   `json:"userId"`
	Email       string   `json:"email"`
	TokenID     string   `json:"tokenId"`
	Token       string   `json:"token"`
	TokenPrefix string   `json:"tokenPrefix"`
	Scopes      []string `json:"scopes"`
}

type options struct {
	organizationID string
	userID         string
	email          string
	name           string
	scopes         []string
	tier           string
}

// userStore is the part of the repository needed to own the token.
type userStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		orgID       = flag.String("organization", envOr("DEFAULT_ORGANIZATION_ID", "DEFAULT"), "Organization of the user")
		userID      = flag.String("user-id", "admin", "User owning the token")
		email       = flag.String("email", "admin@apim.local", "User email, used when the user is created")
		name        = flag.String("name", "bootstrap", "Token name")
		scopesInput = flag.String("scopes", "admin", "Comma-separated scopes (read,write,admin)")
		tier        = flag.String("tier", model.TierUnlimited, "Rate limit tier (standard,automation,unlimited)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	out, err := issue(ctx, repo, service.NewTokenService(repo, nil), options{
		organizationID: *orgID,
		userID:         *userID,
		email:          *email,
		name:           *name,
		scopes:         parseScopes(*scopesInput),
		tier:           *tier,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := write(os.Stdout, out, *format); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func issue(ctx context.Context, users userStore, tokens *service.TokenService, opts options) (*output, error) {
	if err := ensureUser(ctx, users, opts); err != nil {
		return nil, err
	}

	issued, err := tokens.Create(ctx,
		service.ExecutionContext{OrganizationID: opts.organizationID, UserID: opts.userID},
		service.CreateTokenInput{Name: opts.name, Scopes: opts.scopes, RateLimitTier: opts.tier},
	)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	return &output{
		UserID:      opts.userID,
		Email:       opts.email,
		TokenID:     issued.Token.ID,
		Token:       issued.Plaintext,
		TokenPrefix: issued.Token.TokenPrefix,
		Scopes:      issued.Token.Scopes,
	}, nil
}

func write(w io.Writer, out *output, format string) error {
	switch strings.ToLower(format) {
	case "plain":
		_, err := fmt.Fprintln(w, out.Token)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return fmt.Errorf("invalid format %q; use plain or json", format)
	}
}

// parseScopes splits the scope list. Validation happens in the token service.
func parseScopes(input string) []string {
	var scopes []string
	for _, part := range strings.Split(input, ",") {
		if scope := strings.TrimSpace(part); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	if len(scopes) == 0 {
		scopes = []string{model.ScopeAdmin}
	}
	return scopes
}

func ensureUser(ctx context.Context, users userStore, opts options) error {
	existing, err := users.GetUser(ctx, opts.userID)
	switch {
	case err == nil:
		if existing.OrganizationID != opts.organizationID {
			return fmt.Errorf("user %s belongs to organization %s", opts.userID, existing.OrganizationID)
		}
		return nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("load user: %w", err)
	}

	user := &model.User{
		ID:             opts.userID,
		OrganizationID: opts.organizationID,
		Email:          opts.email,
		Source:         "bootstrap",
		CreatedAt:      time.Now().UTC(),
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
