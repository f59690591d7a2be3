package main

import (
	"database/sql"
	"fmt"

	"github.com/PaulFidika/entitlekit/config"
	migrations "github.com/PaulFidika/entitlekit/migrations/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/migrate"
)

var migrateRollback bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply (or roll back) the entitlement store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		log := cfg.Logger()
		ctx := cmd.Context()

		sqldb, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		m := migrate.NewMigrator(db, migrations.Migrations)
		if err := m.Init(ctx); err != nil {
			return fmt.Errorf("init migrations: %w", err)
		}
		if err := m.Lock(ctx); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}
		defer func() { _ = m.Unlock(ctx) }()

		if migrateRollback {
			group, err := m.Rollback(ctx)
			if err != nil {
				return err
			}
			log.WithField("group", group.String()).Info("rolled back")
			return nil
		}
		group, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		if group.IsZero() {
			log.Info("schema up to date")
			return nil
		}
		log.WithField("group", group.String()).Info("migrated")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateRollback, "rollback", false, "roll back the last migration group")
}
