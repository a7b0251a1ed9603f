// Package parser turns raw in_network items into canonical rate records.
package parser

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/normalize"
	"github.com/gyeh/mrfscan/internal/payer"
	"github.com/gyeh/mrfscan/internal/resolver"
	"github.com/gyeh/mrfscan/internal/schema"
)

// itemErrorBurst caps item_parse_error warnings per document per minute.
const itemErrorBurst = 10

// Factory creates one Parser per document. It is safe for concurrent use.
type Factory struct {
	registry   *payer.Registry
	inline     resolver.Resolver
	remote     resolver.Resolver
	normalizer *normalize.Normalizer
	log        zerolog.Logger
}

// NewFactory creates a Factory. remote serves documents whose providers live
// at external locations.
func NewFactory(registry *payer.Registry, remote resolver.Resolver, normalizer *normalize.Normalizer, log zerolog.Logger) *Factory {
	return &Factory{
		registry:   registry,
		inline:     resolver.NewInline(log),
		remote:     remote,
		normalizer: normalizer,
		log:        log,
	}
}

// Create detects the document's schema and picks its resolver. An
// undetectable schema returns *model.SchemaUnknownError.
func (f *Factory) Create(doc *model.RateDocument, payerName string) (*Parser, error) {
	desc := schema.Describe(doc)
	log := f.log.With().Str("component", "parser").Str("source", doc.Source).Str("payer", payerName).Logger()
	log.Info().Str("event", "schema_detected").Stringer("schema", desc.Kind).
		Strs("first_entry_keys", desc.FirstEntryKeys).Int("provider_references", desc.ReferenceCount).
		Msg("schema detected")

	var res resolver.Resolver
	switch desc.Kind {
	case model.EmbeddedProviders:
		res = f.inline
	case model.ExternalProviders:
		res = f.remote
	default:
		return nil, &model.SchemaUnknownError{Source: doc.Source, FirstEntryKeys: desc.FirstEntryKeys}
	}
	strategy := f.registry.Lookup(payerName)
	return &Parser{
		doc:        doc,
		kind:       desc.Kind,
		payer:      payerName,
		strategy:   strategy,
		resolver:   res,
		normalizer: f.normalizer,
		stats:      &model.FileStats{},
		log:        log,
		errLog:     log.Sample(&zerolog.BurstSampler{Burst: itemErrorBurst, Period: time.Minute}),
	}, nil
}
