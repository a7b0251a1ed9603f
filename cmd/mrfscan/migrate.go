package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyeh/mrfscan/internal/db"
	"github.com/gyeh/mrfscan/internal/exitcode"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cfg.DSN == "" {
		err := fmt.Errorf("--dsn, MRFSCAN_DSN or DATABASE_URL is required")
		log.Error().Err(err).Msg("config validation failed")
		return exit(exitcode.UsageError, err)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		return exit(exitcode.DBConnError, err)
	}
	defer pool.Close()

	if _, err := db.ApplyMigrations(ctx, pool, log); err != nil {
		log.Error().Err(err).Msg("migration failed")
		return exit(exitcode.SinkError, err)
	}
	return nil
}
