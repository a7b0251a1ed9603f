package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gyeh/mrfscan/internal/db"
	"github.com/gyeh/mrfscan/internal/exitcode"
	"github.com/gyeh/mrfscan/internal/ingest"
	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/sink"
)

var runFlags struct {
	maxFiles  int
	noDB      bool
	noParquet bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan every configured payer's rate files into the sinks",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&cfg.DryRun, "dry-run", false, "Scan and count records without writing anything")
	f.IntVar(&runFlags.maxFiles, "max-files", 0, "Maximum rate files per payer (overrides config)")
	f.StringVar(&cfg.PayerFilter, "payer", "", "Only run this configured payer")
	f.BoolVar(&runFlags.noDB, "no-db", false, "Skip the Postgres sink even when a DSN is set")
	f.BoolVar(&runFlags.noParquet, "no-parquet", false, "Skip the Parquet sink")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("max-files") {
		cfg.MaxFilesPerPayer = runFlags.maxFiles
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		return exit(exitcode.ValidationError, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := newEngine(cfg.BillingCodes)
	if err != nil {
		log.Error().Err(err).Msg("engine setup failed")
		return exit(exitcode.ValidationError, err)
	}
	runID := uuid.New()
	deps := ingest.Deps{
		Index:  newIndexReader(),
		Engine: engine,
		Dedup:  sink.NewDedup(sink.DefaultDedupEntries),
	}

	if !cfg.DryRun {
		if !runFlags.noParquet {
			p, err := newParquetSink(ctx, runID.String())
			if err != nil {
				log.Error().Err(err).Msg("object storage setup failed")
				return exit(exitcode.SinkError, err)
			}
			deps.Sinks = append(deps.Sinks, p)
		}
		if cfg.DSN != "" && !runFlags.noDB {
			pool, err := db.NewPool(ctx, cfg.DSN)
			if err != nil {
				log.Error().Err(err).Msg("database connection failed")
				return exit(exitcode.DBConnError, err)
			}
			defer pool.Close()
			pg := sink.NewPostgres(pool, runID, log)
			deps.Sinks = append(deps.Sinks, pg)
			deps.Recorder = pg
		}
		if len(deps.Sinks) == 0 {
			log.Warn().Msg("no sinks enabled; records are counted only")
		}
	}

	summary, err := ingest.Run(ctx, deps, log, &cfg, runID.String())
	if summary != nil {
		printSummary(summary)
	}
	return runExit(summary, err)
}

func newParquetSink(ctx context.Context, runID string) (*sink.Parquet, error) {
	opts := sink.ParquetOptions{
		Dir:       cfg.Output.Dir,
		RunID:     runID,
		BatchSize: cfg.Output.BatchSize,
		KeepLocal: cfg.Output.KeepLocal,
	}
	if cfg.Output.S3.Enabled() {
		up, err := sink.NewS3Uploader(ctx, cfg.Output.S3, log)
		if err != nil {
			return nil, err
		}
		opts.Uploader = up
	}
	return sink.NewParquet(opts, log), nil
}

// runExit maps a run result to the process exit code.
func runExit(s *model.RunSummary, err error) error {
	var pe *ingest.PipelineError
	switch {
	case errors.As(err, &pe):
		log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("run failed")
		if pe.Phase == ingest.PhaseIndex {
			return exit(exitcode.StructureError, err)
		}
		return exit(exitcode.SinkError, err)
	case errors.Is(err, context.Canceled):
		log.Warn().Msg("run interrupted")
		return exit(exitcode.PartialSuccess, err)
	case err != nil:
		log.Error().Err(err).Msg("run failed")
		return exit(exitcode.StructureError, err)
	case s.FilesFailed > 0 && s.FilesOK == 0:
		return exit(exitcode.StructureError, fmt.Errorf("all %d attempted files failed", s.FilesFailed))
	case s.FilesFailed > 0 || s.PayersFailed > 0:
		return exit(exitcode.PartialSuccess, fmt.Errorf("%d files and %d payers failed", s.FilesFailed, s.PayersFailed))
	}
	return nil
}

func printSummary(s *model.RunSummary) {
	fmt.Printf("Run %s complete (%.1fs)\n", s.RunID, s.DurationTotal.Seconds())
	fmt.Printf("  payers:  %d (%d failed)\n", s.Payers, s.PayersFailed)
	fmt.Printf("  files:   %d listed, %d ok, %d skipped, %d failed\n", s.FilesListed, s.FilesOK, s.FilesSkipped, s.FilesFailed)
	fmt.Printf("  records: %d emitted, %d written\n", s.RecordsEmitted, s.RecordsWritten)
	for _, o := range s.Outcomes {
		if o.Status == model.FileOK {
			continue
		}
		fmt.Printf("  %-16s %-16s %s\n", o.Status, o.Reason, o.File.URL)
	}
}
