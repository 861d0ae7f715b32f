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
		log.Println("creating transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &portfoliostore.TransactionDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &portfoliostore.TransactionDao{}, "user_id", "portfolio_id", "chain_id", "ts")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transactions table...")
		return mghelper.DropTables(ctx, db, &portfoliostore.TransactionDao{})
	})
}
