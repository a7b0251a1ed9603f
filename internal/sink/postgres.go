package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/db"
	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/normalize"
	embedsql "github.com/gyeh/mrfscan/internal/sql"
)

// Postgres COPY-loads records into mrf.rate_records and keeps the run
// bookkeeping in the ingest schema.
type Postgres struct {
	pool  *pgxpool.Pool
	runID uuid.UUID
	log   zerolog.Logger
}

// NewPostgres creates a Postgres sink for one run.
func NewPostgres(pool *pgxpool.Pool, runID uuid.UUID, log zerolog.Logger) *Postgres {
	return &Postgres{
		pool:  pool,
		runID: runID,
		log:   log.With().Str("component", "sink").Str("sink", "postgres").Logger(),
	}
}

func (p *Postgres) Name() string { return "postgres" }

// Consume streams records into COPY via a channel-backed CopyFromSource, so
// the scan never runs ahead of the database by more than the channel buffer.
func (p *Postgres) Consume(ctx context.Context, _ string, file model.FileDescriptor, records <-chan *model.CanonicalRateRecord) (int64, error) {
	start := time.Now()
	n, err := p.pool.CopyFrom(ctx,
		pgx.Identifier{"mrf", "rate_records"},
		model.RecordColumns(),
		db.NewChannelSource(records, p.runID),
	)
	if err != nil {
		return n, fmt.Errorf("copy rate records: %w", err)
	}
	p.log.Debug().Str("url", file.URL).Int64("rows", n).Dur("duration", time.Since(start)).Msg("copy complete")
	return n, nil
}

func (p *Postgres) Close(context.Context) error { return nil }

// BeginRun registers the run in ingest.runs.
func (p *Postgres) BeginRun(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, embedsql.InsertRun, p.runID); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordOutcome stores one file outcome.
func (p *Postgres) RecordOutcome(ctx context.Context, payer string, o model.FileOutcome) error {
	var errText string
	if o.Err != nil {
		errText = o.Err.Error()
	}
	var schemaKind string
	if o.Stats.Schema != model.SchemaUnknown {
		schemaKind = o.Stats.Schema.String()
	}
	_, err := p.pool.Exec(ctx, embedsql.InsertFileOutcome,
		p.runID, payer, o.File.URL, string(o.File.Kind), o.File.PlanName,
		string(o.Status), o.Reason, errText, o.Stats.Path, schemaKind,
		o.Stats.ItemsSeen, o.Stats.ItemsSkipped, o.Stats.RecordsEmitted, o.RecordsWritten,
		o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert file outcome: %w", err)
	}
	return nil
}

// FinishRun stores the run totals and final status.
func (p *Postgres) FinishRun(ctx context.Context, s *model.RunSummary, status string) error {
	_, err := p.pool.Exec(ctx, embedsql.FinishRun,
		p.runID, status, s.Payers, s.FilesListed, s.FilesOK, s.FilesSkipped, s.FilesFailed,
		s.RecordsEmitted, s.RecordsWritten,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// UpsertDimensions records the payer and the plans its index lists.
func (p *Postgres) UpsertDimensions(ctx context.Context, name, indexURL string, files []model.FileDescriptor) error {
	var payerID int64
	if err := p.pool.QueryRow(ctx, embedsql.UpsertPayer, normalize.PayerKey(name), name, indexURL).Scan(&payerID); err != nil {
		return fmt.Errorf("upsert payer: %w", err)
	}

	type planKey struct{ name, id string }
	seen := make(map[planKey]bool)
	var names, ids, markets []string
	for _, fd := range files {
		if fd.PlanName == "" {
			continue
		}
		k := planKey{fd.PlanName, fd.PlanID}
		if seen[k] {
			continue
		}
		seen[k] = true
		names = append(names, fd.PlanName)
		ids = append(ids, fd.PlanID)
		markets = append(markets, fd.PlanMarketType)
	}
	if len(names) == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx, embedsql.UpsertPlans, payerID, names, ids, markets); err != nil {
		return fmt.Errorf("upsert plans: %w", err)
	}
	return nil
}

// Analyze refreshes planner statistics on the records table.
func (p *Postgres) Analyze(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, embedsql.AnalyzeRateRecords); err != nil {
		return fmt.Errorf("analyze rate records: %w", err)
	}
	return nil
}
