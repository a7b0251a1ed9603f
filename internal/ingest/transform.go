package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/config"
	"github.com/gyeh/mrfscan/internal/model"
)

// Transform scans one rate file through the engine into the sinks and
// returns its outcome. The error is non-nil only for a sink failure, which
// ends the run; every other failure is captured in the outcome.
func Transform(ctx context.Context, deps Deps, log zerolog.Logger, p config.Payer, fd model.FileDescriptor) (model.FileOutcome, error) {
	start := time.Now()
	flog := log.With().Str("url", fd.URL).Str("plan", fd.PlanName).Logger()
	o := model.FileOutcome{File: fd, Status: model.FileOK}

	records := deps.Engine.Scan(ctx, fd, p.Name, &o.Stats)
	res, scanErr, sinkErr := Stage(ctx, deps.Sinks, deps.Dedup, flog, p.Name, fd, records)
	o.RecordsWritten = res.RecordsDelivered
	o.Duration = time.Since(start)

	if sinkErr != nil {
		o.Status, o.Reason, o.Err = model.FileFailed, model.ReasonSinkFailed, sinkErr
		flog.Error().Err(sinkErr).Str("event", "file_skipped").Str("reason", o.Reason).Msg("sink failed")
		return o, sinkErr
	}
	if scanErr != nil {
		o.Status, o.Reason = classify(ctx, scanErr)
		o.Err = scanErr
		ev := flog.Warn()
		if o.Status == model.FileSkipped {
			ev = flog.Info()
		}
		ev.Err(scanErr).
			Str("event", "file_skipped").
			Str("reason", o.Reason).
			Int64("records_emitted", o.Stats.RecordsEmitted).
			Dur("duration", o.Duration).
			Msg("file skipped")
		return o, nil
	}

	flog.Info().
		Str("path", o.Stats.Path).
		Stringer("schema", o.Stats.Schema).
		Int64("items_seen", o.Stats.ItemsSeen).
		Int64("items_skipped", o.Stats.ItemsSkipped).
		Int64("records_emitted", o.Stats.RecordsEmitted).
		Int64("records_duplicate", res.RecordsDuplicate).
		Int64("records_written", o.RecordsWritten).
		Str("duration", o.Duration.String()).
		Msg("file complete")
	return o, nil
}

// classify maps a scan failure to a file status and reason.
func classify(ctx context.Context, err error) (model.FileStatus, string) {
	var (
		su *model.SchemaUnknownError
		se *model.StructureError
		be *model.BudgetExceededError
	)
	switch {
	case errors.As(err, &su):
		return model.FileSkipped, model.ReasonSchemaUnknown
	case errors.As(err, &be):
		return model.FileBudgetExceeded, model.ReasonBudgetExceeded
	case errors.As(err, &se):
		return model.FileFailed, model.ReasonStructureError
	case ctx.Err() != nil:
		return model.FileFailed, model.ReasonCanceled
	default:
		return model.FileFailed, model.ReasonFetchFailed
	}
}
