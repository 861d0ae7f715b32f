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
		log.Println("creating portfolios table...")
		if err := mghelper.CreateSchema(ctx, db, &portfoliostore.PortfolioDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &portfoliostore.PortfolioDao{}, "user_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping portfolios table...")
		return mghelper.DropTables(ctx, db, &portfoliostore.PortfolioDao{})
	})
}
