// Package portfoliodb holds all the migrations for the portfolio database
package portfoliodb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection every file in this package registers into.
var Migrations = migrate.NewMigrations()
