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
		log.Println("creating daily_snapshots table...")
		if err := mghelper.CreateSchema(ctx, db, &portfoliostore.SnapshotDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &portfoliostore.SnapshotDao{}, "portfolio_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping daily_snapshots table...")
		return mghelper.DropTables(ctx, db, &portfoliostore.SnapshotDao{})
	})
}
