package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun/migrate"

	"github.com/tokenfolio/portfolio-api/pkg/migrations/portfoliodb"
	"github.com/tokenfolio/portfolio-api/pkg/pgutil"
)

func TestPortfolioDBMigrations_Apply(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, portfoliodb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	expectedTables := []string{
		"users",
		"portfolios",
		"assets",
		"transactions",
		"watchlist_items",
		"daily_snapshots",
		"bun_migrations",
	}
	for _, table := range expectedTables {
		pgutil.AssertTableExists(t, db, table)
	}

	pgutil.AssertIndexExists(t, db, "idx_portfolios_user_id")
	pgutil.AssertIndexExists(t, db, "idx_assets_portfolio_id")
	pgutil.AssertIndexExists(t, db, "idx_transactions_user_id")
	pgutil.AssertIndexExists(t, db, "idx_transactions_ts")
	pgutil.AssertIndexExists(t, db, "idx_watchlist_items_user_token_chain")
	pgutil.AssertIndexExists(t, db, "idx_daily_snapshots_portfolio_id")
}

func TestPortfolioDBMigrations_Rollback(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, portfoliodb.Migrations)

	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	// All six migrations run as one group, so a single rollback
	// drops every table again.
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected a migration group to be rolled back")
	}

	pgutil.AssertTableNotExists(t, db, "daily_snapshots")
	pgutil.AssertTableNotExists(t, db, "users")
}
