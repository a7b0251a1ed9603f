package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/mrfscan/internal/config"
	"github.com/gyeh/mrfscan/internal/exitcode"
	"github.com/gyeh/mrfscan/internal/logging"
)

var (
	cfg        = config.Default()
	configPath string
	log        zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mrfscan",
	Short: "Payer price-transparency MRF scanner",
	Long: "Reads payer machine-readable file indexes and in-network rate files, " +
		"streams them into canonical negotiated-rate records and loads them into Parquet, Postgres and S3.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to YAML config file")
	pf.StringVar(&cfg.DSN, "dsn", "", "Postgres connection string (or set MRFSCAN_DSN / DATABASE_URL)")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

// setup loads .env, the config file and environment overrides before any
// command runs.
func setup(cmd *cobra.Command, args []string) error {
	log = logging.SetupLevel(cfg.LogFormat, cfg.LogLevel)
	if err := config.LoadEnv(); err != nil {
		log.Error().Err(err).Msg("load .env failed")
		return exit(exitcode.ValidationError, err)
	}
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			log.Error().Err(err).Str("config", configPath).Msg("config load failed")
			return exit(exitcode.ValidationError, err)
		}
	}
	cfg.ApplyEnv()
	return nil
}
