package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/config"
	"github.com/gyeh/mrfscan/internal/index"
	"github.com/gyeh/mrfscan/internal/model"
)

// PreflightResult holds the files a payer run will process.
type PreflightResult struct {
	Payer config.Payer
	// Files are the parseable files, in index order, capped at the per-payer
	// limit.
	Files []model.FileDescriptor
	// Skipped are outcomes for listed files that will not be parsed.
	Skipped  []model.FileOutcome
	Duration time.Duration
}

// Preflight lists the payer's index and selects the files to scan. Files of
// a kind that carries no in-network rates are skipped with
// unsupported_kind. An index that cannot be read is an error.
func Preflight(ctx context.Context, idx *index.Reader, log zerolog.Logger, p config.Payer, maxFiles int) (*PreflightResult, error) {
	start := time.Now()
	pf := &PreflightResult{Payer: p}

	seen := make(map[string]bool)
	for fd, err := range idx.ListFiles(ctx, p.IndexURL) {
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", p.IndexURL, err)
		}
		if !fd.Parseable() {
			log.Info().Str("event", "file_skipped").Str("reason", model.ReasonUnsupportedKind).
				Str("url", fd.URL).Str("kind", string(fd.Kind)).Msg("file skipped")
			pf.Skipped = append(pf.Skipped, model.FileOutcome{
				File:   fd,
				Status: model.FileSkipped,
				Reason: model.ReasonUnsupportedKind,
			})
			continue
		}
		// Indexes repeat the same rate file under every plan that uses it.
		if seen[fd.URL] {
			continue
		}
		seen[fd.URL] = true
		if maxFiles > 0 && len(pf.Files) >= maxFiles {
			continue
		}
		pf.Files = append(pf.Files, fd)
	}

	pf.Duration = time.Since(start)
	log.Info().
		Str("index_url", p.IndexURL).
		Int("files", len(pf.Files)).
		Int("distinct_listed", len(seen)).
		Int("skipped", len(pf.Skipped)).
		Dur("duration", pf.Duration).
		Msg("preflight complete")
	return pf, nil
}
