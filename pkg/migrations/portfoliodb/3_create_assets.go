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
		log.Println("creating assets table...")
		if err := mghelper.CreateSchema(ctx, db, &portfoliostore.AssetDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &portfoliostore.AssetDao{}, "portfolio_id", "token_address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping assets table...")
		return mghelper.DropTables(ctx, db, &portfoliostore.AssetDao{})
	})
}
