//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apimplane/apim/internal/testutil"
)

// ============================================================================
// Migration Integration Tests
// ============================================================================

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	if err := NewWithPool(pool).Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	tables := []string{
		"users",
		"groups",
		"applications",
		"integrations",
		"roles",
		"memberships",
		"management_tokens",
		"apis",
		"plans",
		"subscriptions",
		"api_keys",
		"alert_triggers",
		"audits",
		"installation",
		"schema_migrations",
	}

	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, pool, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_PlansTableSchema(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	expectedColumns := []string{
		"id",
		"api_id",
		"security",
		"status",
		"validation",
		"plan_order",
		"published_at",
		"closed_at",
		"need_redeploy_at",
	}

	for _, col := range expectedColumns {
		t.Run(col, func(t *testing.T) {
			exists, err := columnExists(ctx, pool, "plans", col)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist in plans table", col)
			}
		})
	}
}

func TestIntegrationMigration_PlanStatusConstraint(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)
	repo := NewWithPool(pool)

	api := testutil.NewTestApi(t, "DEFAULT")
	if err := repo.CreateApi(ctx, api); err != nil {
		t.Fatalf("CreateApi failed: %v", err)
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO plans (id, api_id, name, security, status) VALUES ('p1', $1, 'bad', 'KEY_LESS', 'DRAFT')`,
		api.ID)
	if err == nil {
		t.Error("plan with unknown status should violate the check constraint")
	}
}

func TestIntegrationMigration_Idempotency(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)
	repo := NewWithPool(pool)

	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	files, err := MigrationFiles("up")
	if err != nil {
		t.Fatalf("MigrationFiles failed: %v", err)
	}
	if count != len(files) {
		t.Errorf("expected %d recorded migrations, got %d", len(files), count)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

func newMigrationTestEnv(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, pool
}
