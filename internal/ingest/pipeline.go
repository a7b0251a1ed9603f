// Package ingest runs payers' rate files through the streaming engine into
// the configured sinks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/config"
	"github.com/gyeh/mrfscan/internal/index"
	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/sink"
	"github.com/gyeh/mrfscan/internal/stream"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Phases reported in PipelineError.
const (
	PhaseBegin    = "begin"
	PhaseIndex    = "index"
	PhaseSink     = "sink"
	PhaseFinalize = "finalize"
)

// Recorder persists run bookkeeping. *sink.Postgres implements it.
type Recorder interface {
	BeginRun(ctx context.Context) error
	UpsertDimensions(ctx context.Context, name, indexURL string, files []model.FileDescriptor) error
	RecordOutcome(ctx context.Context, payer string, o model.FileOutcome) error
	FinishRun(ctx context.Context, s *model.RunSummary, status string) error
	Analyze(ctx context.Context) error
}

// Deps are the collaborators a run needs. Sinks, Dedup and Recorder may be
// empty; with no sinks a run only counts records.
type Deps struct {
	Index    *index.Reader
	Engine   *stream.Engine
	Sinks    []sink.Sink
	Dedup    *sink.Dedup
	Recorder Recorder
}

// Run executes a full ingest: for each payer, preflight (list the index) →
// dimensions → transform each file through the sinks → finalize → cleanup.
// File failures are recorded in the summary and never stop the run; a sink
// failure does.
func Run(ctx context.Context, deps Deps, log zerolog.Logger, cfg *config.Config, runID string) (*model.RunSummary, error) {
	totalStart := time.Now()
	summary := &model.RunSummary{RunID: runID}
	log = log.With().Str("run_id", runID).Logger()

	if deps.Recorder != nil {
		if err := deps.Recorder.BeginRun(ctx); err != nil {
			return nil, &PipelineError{Phase: PhaseBegin, Err: err}
		}
	}

	runErr := runPayers(ctx, deps, log, cfg, summary)

	summary.DurationTotal = time.Since(totalStart)
	if err := Finalize(ctx, deps, log, summary, runErr); err != nil && runErr == nil {
		runErr = &PipelineError{Phase: PhaseFinalize, Err: err}
	}
	if !cfg.DryRun && len(deps.Sinks) > 0 {
		if err := Cleanup(cfg.Output.Dir, log); err != nil {
			log.Warn().Err(err).Msg("output cleanup failed (non-fatal)")
		}
	}

	log.Info().
		Int("payers", summary.Payers).
		Int("payers_failed", summary.PayersFailed).
		Int("files_listed", summary.FilesListed).
		Int("files_ok", summary.FilesOK).
		Int("files_skipped", summary.FilesSkipped).
		Int("files_failed", summary.FilesFailed).
		Int64("records_emitted", summary.RecordsEmitted).
		Int64("records_written", summary.RecordsWritten).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("ingest run complete")

	if runErr == nil && summary.Payers > 0 && summary.PayersFailed == summary.Payers {
		runErr = &PipelineError{Phase: PhaseIndex, Err: errors.New("no payer index could be read")}
	}
	return summary, runErr
}

func runPayers(ctx context.Context, deps Deps, log zerolog.Logger, cfg *config.Config, summary *model.RunSummary) error {
	for _, p := range cfg.SelectedPayers() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary.Payers++
		plog := log.With().Str("payer", p.Name).Logger()

		pf, err := Preflight(ctx, deps.Index, plog, p, cfg.MaxFilesPerPayer)
		if err != nil {
			summary.PayersFailed++
			plog.Error().Err(err).Str("index_url", p.IndexURL).Msg("payer index failed")
			continue
		}
		summary.FilesListed += len(pf.Files) + len(pf.Skipped)

		if err := UpsertDimensions(ctx, deps.Recorder, plog, p, pf.Files); err != nil {
			plog.Warn().Err(err).Msg("dimension upsert failed (non-fatal)")
		}

		for _, o := range pf.Skipped {
			record(ctx, deps, plog, summary, p.Name, o)
		}
		for _, fd := range pf.Files {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o, err := Transform(ctx, deps, plog, p, fd)
			record(ctx, deps, plog, summary, p.Name, o)
			if err != nil {
				return &PipelineError{Phase: PhaseSink, Err: err}
			}
		}
	}
	return nil
}

func record(ctx context.Context, deps Deps, log zerolog.Logger, summary *model.RunSummary, payer string, o model.FileOutcome) {
	summary.Add(o)
	if deps.Recorder == nil {
		return
	}
	if err := deps.Recorder.RecordOutcome(context.WithoutCancel(ctx), payer, o); err != nil {
		log.Warn().Err(err).Str("url", o.File.URL).Msg("record file outcome failed")
	}
}

// RunStatus names the final state stored for a run.
func RunStatus(s *model.RunSummary, err error) string {
	switch {
	case err != nil:
		return "failed"
	case s.FilesFailed > 0 || s.PayersFailed > 0:
		return "partial"
	default:
		return "ok"
	}
}
