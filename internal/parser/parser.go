package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/normalize"
	"github.com/gyeh/mrfscan/internal/payer"
	"github.com/gyeh/mrfscan/internal/resolver"
)

// Parser expands the items of one document into records. It is not safe for
// concurrent use.
type Parser struct {
	doc        *model.RateDocument
	kind       model.SchemaKind
	payer      string
	strategy   payer.Strategy
	resolver   resolver.Resolver
	normalizer *normalize.Normalizer
	file       model.FileDescriptor
	fileRefs   model.ProviderReferenceTable
	stats      *model.FileStats
	log        zerolog.Logger
	// errLog reports item parse errors at warn level, rate limited per
	// document.
	errLog zerolog.Logger

	prepared bool
	table    model.ProviderReferenceTable
	dc       *payer.DocContext
	index    int
}

// Kind returns the detected schema.
func (p *Parser) Kind() model.SchemaKind { return p.kind }

// WithFile sets the index entry whose plan metadata is copied onto records.
func (p *Parser) WithFile(fd model.FileDescriptor) *Parser {
	p.file = fd
	return p
}

// WithFileReferences adds a provider table loaded from the index entry's
// provider reference file. Ids defined by the document win.
func (p *Parser) WithFileReferences(t model.ProviderReferenceTable) *Parser {
	p.fileRefs = t
	return p
}

// WithStats makes the parser count into stats.
func (p *Parser) WithStats(stats *model.FileStats) *Parser {
	if stats != nil {
		p.stats = stats
	}
	return p
}

// Table returns the resolved provider table, or nil before Prepare.
func (p *Parser) Table() model.ProviderReferenceTable { return p.table }

// Prepare resolves provider references and runs the payer's Preprocess hook.
// It runs once; Parse calls it when needed.
func (p *Parser) Prepare(ctx context.Context) error {
	if p.prepared {
		return nil
	}
	start := time.Now()
	table, err := p.resolver.Resolve(ctx, p.doc)
	if err != nil {
		return fmt.Errorf("resolve provider references: %w", err)
	}
	if p.fileRefs != nil {
		table.MergeMissing(p.fileRefs)
	}
	p.table = table
	p.dc = payer.Context(p.strategy, p.doc)
	p.prepared = true
	p.stats.Schema = p.kind
	p.stats.ProviderGroups = len(table)
	p.log.Info().Str("event", "references_resolved").Int("groups", len(table)).
		Int("npis", table.NPICount()).Dur("elapsed", time.Since(start)).Msg("provider references resolved")
	return nil
}

// ParseRaw decodes one raw item and parses it. Malformed items are logged,
// counted and yield nothing.
func (p *Parser) ParseRaw(ctx context.Context, raw json.RawMessage) iter.Seq[model.CanonicalRateRecord] {
	var it model.InNetworkItem
	if err := json.Unmarshal(raw, &it); err != nil {
		p.Skip(err)
		return noRecords
	}
	return p.Parse(ctx, it)
}

// ParseFields parses an item accumulated key by key by the streaming walker.
func (p *Parser) ParseFields(ctx context.Context, m map[string]json.RawMessage) iter.Seq[model.CanonicalRateRecord] {
	it, err := model.DecodeItemFields(m)
	if err != nil {
		p.Skip(err)
		return noRecords
	}
	return p.Parse(ctx, it)
}

func noRecords(func(model.CanonicalRateRecord) bool) {}

// Skip counts and logs an item that could not be decoded.
func (p *Parser) Skip(err error) {
	idx := p.index
	p.index++
	p.stats.ItemsSeen++
	p.stats.ItemsSkipped++
	p.errLog.Warn().Str("event", "item_parse_error").Err(&model.ItemParseError{Index: idx, Err: err}).
		Int64("items_skipped", p.stats.ItemsSkipped).Msg("skipping malformed item")
}

// Parse reshapes item through the payer strategy and yields one record per
// negotiated price and resolved NPI.
func (p *Parser) Parse(ctx context.Context, item model.InNetworkItem) iter.Seq[model.CanonicalRateRecord] {
	idx := p.index
	p.index++
	p.stats.ItemsSeen++
	return func(yield func(model.CanonicalRateRecord) bool) {
		if err := p.Prepare(ctx); err != nil {
			p.log.Error().Err(err).Msg("prepare parser")
			return
		}
		// Strategies never rewrite billing codes, so filter before reshaping.
		if !p.normalizer.Allow(item.BillingCode, item.BillingCodeType) {
			p.stats.ItemsFiltered++
			return
		}
		for _, it := range p.strategy.Reshape(p.dc, item) {
			if !p.expand(idx, it, yield) {
				return
			}
		}
	}
}

// ParseDocument parses every item of a whole document in source order.
func (p *Parser) ParseDocument(ctx context.Context) iter.Seq[model.CanonicalRateRecord] {
	return func(yield func(model.CanonicalRateRecord) bool) {
		for _, raw := range p.doc.InNetwork {
			if ctx.Err() != nil {
				return
			}
			for rec := range p.ParseRaw(ctx, raw) {
				if !yield(rec) {
					return
				}
			}
		}
	}
}

type provider struct {
	npi  *string
	tin  *string
	name *string
}

func (p *Parser) expand(idx int, it model.InNetworkItem, yield func(model.CanonicalRateRecord) bool) bool {
	base := model.CanonicalRateRecord{
		BillingCode:            it.BillingCode,
		BillingCodeType:        it.BillingCodeType,
		Description:            it.Description,
		Payer:                  p.payer,
		NegotiationArrangement: it.NegotiationArrangement,
		PlanName:               p.file.PlanName,
		PlanID:                 p.file.PlanID,
		PlanMarketType:         p.file.PlanMarketType,
		SourceURL:              p.doc.Source,
	}
	if base.Description == "" {
		base.Description = it.Name
	}

	if it.NegotiatedRates.Kind == model.RatesDirect {
		rate, err := p.coerce(idx, it.BillingCode, it.NegotiatedRates.Direct)
		if err != nil {
			return true
		}
		rec := base
		rec.NegotiatedRate = rate
		return p.emit(rec, yield)
	}

	for _, g := range it.NegotiatedRates.Groups {
		providers := p.providers(g)
		for _, price := range g.NegotiatedPrices {
			rate, err := p.coerce(idx, it.BillingCode, price.NegotiatedRate)
			if err != nil {
				continue
			}
			rec := base
			rec.NegotiatedRate = rate
			rec.NegotiatedType = price.NegotiatedType
			rec.BillingClass = price.BillingClass
			rec.ServiceCodes = price.ServiceCode
			rec.ExpirationDate = price.ExpirationDate
			rec.BillingCodeModifiers = price.BillingCodeModifier
			if len(providers) == 0 {
				if !p.emit(rec, yield) {
					return false
				}
				continue
			}
			for _, pr := range providers {
				r := rec
				r.ProviderNPI, r.ProviderTIN, r.ProviderName = pr.npi, pr.tin, pr.name
				if !p.emit(r, yield) {
					return false
				}
			}
		}
	}
	return true
}

// providers flattens the groups a rate group refers to, by id and inline,
// into one entry per NPI. Every NPI keeps the TIN and name of its group.
func (p *Parser) providers(g model.RateGroup) []provider {
	var out []provider
	add := func(pg model.ProviderGroup) {
		for _, npi := range pg.NPIs {
			out = append(out, provider{npi: &npi, tin: pg.TIN, name: pg.GroupName})
		}
	}
	for _, id := range g.ProviderReferences {
		for _, pg := range p.table[string(id)] {
			add(pg)
		}
	}
	for _, e := range g.ProviderGroups {
		if strings.TrimSpace(e.TIN.Value) == "" && g.TIN != nil {
			e.TIN = *g.TIN
		}
		add(e.Canonical())
	}
	return out
}

var errNonPositive = errors.New("negotiated_rate is not positive")

func (p *Parser) coerce(idx int, code string, v model.RateValue) (float64, error) {
	f, err := v.Float()
	if err == nil && f <= 0 {
		err = errNonPositive
	}
	if err != nil {
		p.stats.PricesSkipped++
		p.errLog.Warn().Str("event", "item_parse_error").
			Err(&model.ItemParseError{Index: idx, BillingCode: code, Err: err}).
			Int64("prices_skipped", p.stats.PricesSkipped).Msg("skipping price")
		return 0, err
	}
	return f, nil
}

func (p *Parser) emit(rec model.CanonicalRateRecord, yield func(model.CanonicalRateRecord) bool) bool {
	if !p.normalizer.Normalize(&rec) {
		p.stats.RecordsFiltered++
		return true
	}
	p.stats.RecordsEmitted++
	return yield(rec)
}
