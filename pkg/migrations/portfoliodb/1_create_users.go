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
		log.Println("creating users table...")
		if err := mghelper.CreateSchema(ctx, db, &portfoliostore.UserDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &portfoliostore.UserDao{}, "username")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping users table...")
		return mghelper.DropTables(ctx, db, &portfoliostore.UserDao{})
	})
}
