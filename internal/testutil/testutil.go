package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/apimplane/apim/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops every table through the down migrations and recreates
// them through the up migrations.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	dir, err := MigrationsDir()
	if err != nil {
		return err
	}

	for _, direction := range []string{"down", "up"} {
		files, err := filepath.Glob(filepath.Join(dir, "*."+direction+".sql"))
		if err != nil {
			return fmt.Errorf("list %s migrations: %w", direction, err)
		}
		sort.Strings(files)
		if direction == "down" {
			sort.Sort(sort.Reverse(sort.StringSlice(files)))
		}

		for _, path := range files {
			sql, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read migration %s: %w", filepath.Base(path), err)
			}
			if _, err := pool.Exec(ctx, string(sql)); err != nil {
				return fmt.Errorf("apply migration %s: %w", filepath.Base(path), err)
			}
		}
	}

	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS schema_migrations"); err != nil {
		return fmt.Errorf("drop schema_migrations: %w", err)
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// MigrationsDir returns the directory holding the SQL migrations.
func MigrationsDir() (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "internal", "repository", "migrations"), nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

var idSeq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idSeq.Add(1))
}

// NewTestApi creates a stopped, private API with sensible defaults.
func NewTestApi(t testing.TB, environmentID string) *model.Api {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := UniqueID("api")
	return &model.Api{
		ID:                id,
		EnvironmentID:     environmentID,
		Name:              "Test API " + id,
		Version:           "1.0",
		Description:       "test api",
		DefinitionVersion: model.DefinitionV4,
		Type:              model.ApiTypeProxy,
		ContextPath:       "/" + strings.ReplaceAll(id, "-", ""),
		State:             model.ApiStateStopped,
		LifecycleState:    model.LifecycleCreated,
		Visibility:        model.VisibilityPrivate,
		DefinitionContext: model.DefinitionContext{
			Origin:   model.OriginManagement,
			Mode:     "FULLY_MANAGED",
			SyncFrom: "MANAGEMENT",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestPlan creates a staging plan with sensible defaults.
func NewTestPlan(t testing.TB, apiID string, security model.PlanSecurity, order int) *model.Plan {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := UniqueID("plan")
	return &model.Plan{
		ID:         id,
		ApiID:      apiID,
		Name:       "Plan " + id,
		Security:   security,
		Status:     model.PlanStaging,
		Validation: model.ValidationAuto,
		Mode:       model.PlanModeStandard,
		Order:      order,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewTestSubscription creates a subscription in the given status.
func NewTestSubscription(t testing.TB, plan *model.Plan, applicationID string, status model.SubscriptionStatus) *model.Subscription {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Subscription{
		ID:            UniqueID("sub"),
		ApiID:         plan.ApiID,
		PlanID:        plan.ID,
		ApplicationID: applicationID,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTestToken creates a management token with sensible defaults.
func NewTestToken(t testing.TB, userID string) *model.Token {
	t.Helper()
	now := time.Now().UTC()
	return &model.Token{
		ID:             fmt.Sprintf("token-%d", now.UnixNano()),
		UserID:         userID,
		OrganizationID: "DEFAULT",
		TokenHash:      fmt.Sprintf("hash-%d", now.UnixNano()),
		TokenPrefix:    "a1b2c3",
		Scopes:         []string{model.ScopeRead, model.ScopeWrite},
		RateLimitTier:  model.TierStandard,
		Name:           "Test Token",
		CreatedAt:      now,
	}
}
