// Package migrations embeds the Postgres schema for the entitlement store.
package migrations

import (
	"embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL for external runners and tests.
var FS = migrationFS

// Migrations is the bun/migrate registry applied by `entitlementd migrate`.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(migrationFS); err != nil {
		panic(err)
	}
}
