package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/config"
	"github.com/gyeh/mrfscan/internal/model"
)

// UpsertDimensions records the payer and the plans listed by its index. It
// does nothing without a recorder.
func UpsertDimensions(ctx context.Context, rec Recorder, log zerolog.Logger, p config.Payer, files []model.FileDescriptor) error {
	if rec == nil {
		return nil
	}
	start := time.Now()
	if err := rec.UpsertDimensions(ctx, p.Name, p.IndexURL, files); err != nil {
		return err
	}
	log.Debug().Int("files", len(files)).Dur("duration", time.Since(start)).Msg("dimensions upserted")
	return nil
}
