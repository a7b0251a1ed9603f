package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/model"
)

// Finalize flushes every sink, stores the run totals and refreshes table
// statistics. It runs even when the run failed or was canceled, so batches
// written so far are finished and the run row gets its final status.
func Finalize(ctx context.Context, deps Deps, log zerolog.Logger, s *model.RunSummary, runErr error) error {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, sk := range deps.Sinks {
		if err := sk.Close(ctx); err != nil {
			log.Error().Err(err).Str("sink", sk.Name()).Msg("close sink")
			errs = append(errs, err)
		}
	}
	if deps.Dedup.Full() {
		log.Warn().Int("entries", deps.Dedup.Len()).Msg("dedup set full; later duplicates were kept")
	}

	if deps.Recorder != nil {
		status := RunStatus(s, errors.Join(append(errs, runErr)...))
		if err := deps.Recorder.FinishRun(ctx, s, status); err != nil {
			errs = append(errs, err)
		} else if s.RecordsWritten > 0 {
			if err := deps.Recorder.Analyze(ctx); err != nil {
				log.Warn().Err(err).Msg("analyze failed (non-fatal)")
			}
		}
	}

	log.Info().Dur("duration", time.Since(start)).Msg("finalize complete")
	return errors.Join(errs...)
}
