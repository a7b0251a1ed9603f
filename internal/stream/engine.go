package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/fetch"
	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/parser"
	"github.com/gyeh/mrfscan/internal/resolver"
)

// Source opens and sizes rate files.
type Source interface {
	fetch.Opener
	fetch.Prober
}

// Engine scans rate files into canonical records. It is safe for concurrent
// use; each Scan call keeps its own state.
type Engine struct {
	src     Source
	factory *parser.Factory
	opts    Options
	log     zerolog.Logger
}

// NewEngine creates an Engine.
func NewEngine(src Source, factory *parser.Factory, opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		src:     src,
		factory: factory,
		opts:    opts,
		log:     log.With().Str("component", "stream").Logger(),
	}
}

// Scan lazily yields the records of one rate file. When the file fails, the
// last pair carries a zero record and the error: *model.SchemaUnknownError,
// *model.StructureError, *model.BudgetExceededError or a fetch error.
// Records yielded before a failure remain valid. Counters go to stats, which
// may be nil.
func (e *Engine) Scan(ctx context.Context, fd model.FileDescriptor, payerName string, stats *model.FileStats) iter.Seq2[model.CanonicalRateRecord, error] {
	return func(yield func(model.CanonicalRateRecord, error) bool) {
		if stats == nil {
			stats = &model.FileStats{}
		}
		fctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		wd := startWatchdog(e.opts, cancel)
		defer wd.stop()

		s := &fileScan{
			e:       e,
			fd:      fd,
			payer:   payerName,
			stats:   stats,
			wd:      wd,
			sampler: newSampler(e.opts, e.log),
			doc:     &model.RateDocument{Source: fd.URL},
			start:   time.Now(),
			yield:   yield,
			log:     e.log.With().Str("url", fd.URL).Str("payer", payerName).Logger(),
		}
		err := s.run(fctx)
		if err == nil || errors.Is(err, errStopped) {
			return
		}
		var be *model.BudgetExceededError
		if errors.As(context.Cause(fctx), &be) {
			s.log.Warn().Str("event", "budget_exceeded").Str("budget", be.Budget).
				Dur("limit", be.Limit).Int64("records", stats.RecordsEmitted).Msg("file budget exceeded")
			err = be
		}
		yield(model.CanonicalRateRecord{}, err)
	}
}

// ReadHeader reads a rate file's metadata and provider_references without
// parsing items.
func (e *Engine) ReadHeader(ctx context.Context, source string) (*model.RateDocument, error) {
	rc, err := e.src.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	doc := &model.RateDocument{Source: source}
	w := newWalker(ctx, rc, source, doc, passHeader)
	w.header = func() error { return errStopped }
	if err := w.run(); err != nil && !errors.Is(err, errStopped) {
		return nil, err
	}
	return doc, nil
}

type fileScan struct {
	e        *Engine
	fd       model.FileDescriptor
	payer    string
	stats    *model.FileStats
	wd       *watchdog
	sampler  *sampler
	doc      *model.RateDocument
	parser   *parser.Parser
	fileRefs model.ProviderReferenceTable
	start    time.Time
	yield    func(model.CanonicalRateRecord, error) bool
	log      zerolog.Logger
}

func (s *fileScan) run(ctx context.Context) error {
	path, reason := ChoosePath(ctx, s.e.src, s.fd.URL, s.e.opts.ThresholdBytes)
	s.stats.Path = string(path)
	s.log.Info().Str("path", string(path)).Str("reason", reason).Msg("scanning file")

	if s.fd.ProviderReferenceURL != "" {
		refs, err := resolver.LoadReferenceFile(ctx, s.e.src, s.fd.ProviderReferenceURL)
		if err != nil {
			fail := &model.ResolutionFailure{URL: s.fd.ProviderReferenceURL, Err: err}
			s.log.Warn().Err(fail).Str("event", "resolution_failure").Msg("file provider references not loaded")
		} else {
			s.fileRefs = refs
		}
	}

	var err error
	if path == PathWhole {
		err = s.whole(ctx)
	} else {
		err = s.stream(ctx)
	}
	s.sampler.sample(s.stats)
	return err
}

// header picks the parser and resolves provider references.
func (s *fileScan) header(ctx context.Context) error {
	p, err := s.e.factory.Create(s.doc, s.payer)
	if err != nil {
		return err
	}
	p.WithFile(s.fd).WithStats(s.stats).WithFileReferences(s.fileRefs)
	if err := p.Prepare(ctx); err != nil {
		return err
	}
	s.stats.ProviderRefsAfter = time.Since(s.start)
	s.wd.input()
	s.parser = p
	return nil
}

func (s *fileScan) item(ctx context.Context, fields map[string]json.RawMessage) error {
	s.wd.progress()
	return s.emitAll(ctx, s.parser.ParseFields(ctx, fields))
}

func (s *fileScan) emitAll(ctx context.Context, recs iter.Seq[model.CanonicalRateRecord]) error {
	for rec := range recs {
		if s.stats.FirstRecordAfter == 0 {
			s.stats.FirstRecordAfter = time.Since(s.start)
		}
		s.sampler.observe(s.stats)
		if !s.yield(rec, nil) {
			return errStopped
		}
	}
	return ctx.Err()
}

func (s *fileScan) stream(ctx context.Context) error {
	w, err := s.walk(ctx, passHeader)
	if err != nil {
		return err
	}
	if !w.headerDone {
		if err := s.header(ctx); err != nil {
			return err
		}
	}
	if !w.inNetworkSkipped {
		return nil
	}
	s.log.Info().Msg("in_network precedes provider_references; reading items in a second pass")
	_, err = s.walk(ctx, passItems)
	return err
}

func (s *fileScan) walk(ctx context.Context, p pass) (*walker, error) {
	rc, err := s.e.src.Open(ctx, s.fd.URL)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	w := newWalker(ctx, s.wd.reader(rc), s.fd.URL, s.doc, p)
	w.headerDone = s.parser != nil
	w.header = func() error { return s.header(ctx) }
	w.item = func(fields map[string]json.RawMessage) error { return s.item(ctx, fields) }
	w.bad = func(err error) {
		s.wd.progress()
		s.parser.Skip(err)
	}
	return w, w.run()
}

func (s *fileScan) whole(ctx context.Context) error {
	rc, err := s.e.src.Open(ctx, s.fd.URL)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := decodeWhole(s.wd.reader(rc), s.doc); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if err := s.header(ctx); err != nil {
		return err
	}
	for _, raw := range s.doc.InNetwork {
		s.wd.progress()
		if err := s.emitAll(ctx, s.parser.ParseRaw(ctx, raw)); err != nil {
			return err
		}
	}
	return nil
}

// decodeWhole reads a complete rate document into doc.
func decodeWhole(r io.Reader, doc *model.RateDocument) error {
	var top map[string]json.RawMessage
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&top); err != nil {
		return &model.StructureError{Source: doc.Source, Msg: "malformed json", Err: err}
	}
	if top == nil {
		return &model.StructureError{Source: doc.Source, Msg: "document is null"}
	}
	for key, raw := range top {
		switch key {
		case "provider_references":
			if err := json.Unmarshal(raw, &doc.ProviderReferences); err != nil {
				return &model.StructureError{Source: doc.Source, Msg: "provider_references is not an array", Err: err}
			}
		case "in_network":
			if err := json.Unmarshal(raw, &doc.InNetwork); err != nil {
				return &model.StructureError{Source: doc.Source, Msg: "in_network is not an array", Err: err}
			}
		default:
			if len(raw) == 0 || raw[0] == '{' || raw[0] == '[' {
				continue
			}
			var t model.Text
			if err := json.Unmarshal(raw, &t); err == nil {
				doc.SetMeta(key, string(t))
			}
		}
	}
	return nil
}
