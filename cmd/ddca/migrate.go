package main

import (
	"errors"

	"github.com/spf13/cobra"

	"solana-ddca/internal/storage/migrations"
	pgstore "solana-ddca/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded schema migrations to postgres and ClickHouse",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if cfg.Postgres.DSN == "" && cfg.ClickHouse.DSN == "" {
		return errors.New("nothing to migrate: set postgres.dsn or clickhouse.dsn")
	}

	if cfg.Postgres.DSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		pool.Close()
		if err != nil {
			return err
		}
		logger.Info().Strs("versions", applied).Msg("postgres migrations applied")
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return err
		}
		_ = conn.Close()
		logger.Info().Msg("clickhouse migrations applied")
	}
	return nil
}
