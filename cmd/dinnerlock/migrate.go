package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/RogueScr1be/dinnerlock/internal/cli"
	"github.com/RogueScr1be/dinnerlock/pkg/store"
)

var migrateDB string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema to database",
	Long: `Apply the dinnerlock schema to PostgreSQL.

The migration is idempotent: an unchanged schema is detected by checksum and
skipped. Migration DDL is the one sanctioned owner of CREATE statements; it
does not pass through the isolation analyzer.`,
	Example: `  # Apply schema to database
  dinnerlock migrate --db postgres://localhost/dinner

  # Using configured database
  dinnerlock migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(migrateDB)
		if err != nil {
			return err
		}
		return runMigrate(cmd.Context(), dsn)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDB, "db", "", "database URL")
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}

func runMigrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return cli.DBConnectError("connecting to database", err)
	}

	if err := store.Migrate(ctx, db); err != nil {
		return cli.GeneralError("migration failed", err)
	}

	if !quiet {
		fmt.Println("Schema applied successfully.")
	}
	return nil
}
