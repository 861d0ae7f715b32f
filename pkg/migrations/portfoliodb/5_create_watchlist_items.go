package portfoliodb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/tokenfolio/portfolio-api/pkg/pgutil/migrations"
	"github.com/tokenfolio/portfolio-api/pkg/portfoliostore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating watchlist_items table...")
		if err := mghelper.CreateSchema(ctx, db, &portfoliostore.WatchlistItemDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &portfoliostore.WatchlistItemDao{}, "user_id"); err != nil {
			return err
		}
		// One watchlist entry per user per token per chain.
		_, err := db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_watchlist_items_user_token_chain
			 ON watchlist_items (user_id, token_address, chain_id)`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping watchlist_items table...")
		return mghelper.DropTables(ctx, db, &portfoliostore.WatchlistItemDao{})
	})
}
