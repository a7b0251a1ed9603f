package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/normalize"
)

const flushInterval = 10_000

// PartialSuffix marks a batch file that is still being written.
const PartialSuffix = ".partial"

// Uploader ships a finished batch file to object storage under key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// ParquetOptions configures a Parquet sink.
type ParquetOptions struct {
	Dir       string
	RunID     string
	BatchSize int
	// Uploader is optional. When set, each finished batch is uploaded and,
	// unless KeepLocal, removed from disk afterwards.
	Uploader  Uploader
	KeepLocal bool
}

// Batch is one finished parquet file.
type Batch struct {
	Path     string // local path, empty once removed
	Key      string // path relative to the output dir
	Records  int
	Uploaded bool
}

// Parquet writes records into Snappy-compressed batch files named
// <payer>/<date>/rates_<run>_<seq>.parquet below the output dir. A batch
// holds at most BatchSize records and never mixes payers.
type Parquet struct {
	opts    ParquetOptions
	now     func() time.Time
	log     zerolog.Logger
	cur     *batchFile
	seq     int
	batches []Batch
}

type batchFile struct {
	payer  string
	key    string
	path   string
	file   *os.File
	writer *parquet.GenericWriter[model.CanonicalRateRecord]
	count  int
}

// NewParquet creates a Parquet sink.
func NewParquet(opts ParquetOptions, log zerolog.Logger) *Parquet {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100_000
	}
	return &Parquet{
		opts: opts,
		now:  time.Now,
		log:  log.With().Str("component", "sink").Str("sink", "parquet").Logger(),
	}
}

func (p *Parquet) Name() string { return "parquet" }

// Consume writes records into the current batch, rotating as batches fill.
func (p *Parquet) Consume(ctx context.Context, payer string, _ model.FileDescriptor, records <-chan *model.CanonicalRateRecord) (int64, error) {
	var n int64
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return n, nil
			}
			if err := p.write(ctx, payer, rec); err != nil {
				return n, err
			}
			n++
		}
	}
}

func (p *Parquet) write(ctx context.Context, payer string, rec *model.CanonicalRateRecord) error {
	if p.cur != nil && p.cur.payer != payer {
		if err := p.finish(ctx); err != nil {
			return err
		}
	}
	if p.cur == nil {
		if err := p.open(payer); err != nil {
			return err
		}
	}
	b := p.cur
	if _, err := b.writer.Write([]model.CanonicalRateRecord{*rec}); err != nil {
		return fmt.Errorf("write rate record: %w", err)
	}
	b.count++
	if b.count%flushInterval == 0 {
		if err := b.writer.Flush(); err != nil {
			return fmt.Errorf("flush rate records: %w", err)
		}
	}
	if b.count >= p.opts.BatchSize {
		return p.finish(ctx)
	}
	return nil
}

func (p *Parquet) open(payer string) error {
	p.seq++
	key := filepath.Join(
		normalize.PayerKey(payer),
		p.now().UTC().Format("2006-01-02"),
		fmt.Sprintf("rates_%s_%05d.parquet", p.opts.RunID, p.seq),
	)
	path := filepath.Join(p.opts.Dir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create batch dir: %w", err)
	}
	f, err := os.Create(path + PartialSuffix)
	if err != nil {
		return fmt.Errorf("create rate parquet: %w", err)
	}
	p.cur = &batchFile{
		payer: payer,
		key:   filepath.ToSlash(key),
		path:  path,
		file:  f,
		writer: parquet.NewGenericWriter[model.CanonicalRateRecord](f,
			parquet.Compression(&parquet.Snappy),
		),
	}
	return nil
}

// finish closes the current batch, moves it into place and uploads it.
func (p *Parquet) finish(ctx context.Context) error {
	b := p.cur
	if b == nil {
		return nil
	}
	p.cur = nil
	if err := b.writer.Close(); err != nil {
		b.file.Close()
		return fmt.Errorf("close rate writer: %w", err)
	}
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("close rate parquet: %w", err)
	}
	if err := os.Rename(b.path+PartialSuffix, b.path); err != nil {
		return fmt.Errorf("finish rate parquet: %w", err)
	}

	batch := Batch{Path: b.path, Key: b.key, Records: b.count}
	p.log.Info().Str("file", b.path).Int("records", b.count).Msg("batch written")
	if p.opts.Uploader != nil {
		if err := p.opts.Uploader.Upload(ctx, b.path, b.key); err != nil {
			p.batches = append(p.batches, batch)
			return fmt.Errorf("upload %s: %w", b.key, err)
		}
		batch.Uploaded = true
		if !p.opts.KeepLocal {
			if err := os.Remove(b.path); err != nil {
				p.log.Warn().Err(err).Str("file", b.path).Msg("remove uploaded batch")
			} else {
				batch.Path = ""
			}
		}
	}
	p.batches = append(p.batches, batch)
	return nil
}

// Close finishes the open batch, if any.
func (p *Parquet) Close(ctx context.Context) error {
	return p.finish(ctx)
}

// Batches returns the batches finished so far.
func (p *Parquet) Batches() []Batch {
	return p.batches
}
