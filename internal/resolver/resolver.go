// Package resolver builds the provider reference table of a rate document,
// either from provider groups embedded in the document or from external
// provider documents.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/fetch"
	"github.com/gyeh/mrfscan/internal/model"
)

// Resolver builds a ProviderReferenceTable for one document.
type Resolver interface {
	Resolve(ctx context.Context, doc *model.RateDocument) (model.ProviderReferenceTable, error)
}

// Inline reads provider groups embedded in provider_references. It does no I/O.
type Inline struct {
	log zerolog.Logger
}

// NewInline creates an Inline resolver.
func NewInline(log zerolog.Logger) *Inline {
	return &Inline{log: log.With().Str("component", "resolver").Str("resolver", "inline").Logger()}
}

// Resolve keys every embedded provider group by its provider_group_id.
func (r *Inline) Resolve(ctx context.Context, doc *model.RateDocument) (model.ProviderReferenceTable, error) {
	table := make(model.ProviderReferenceTable)
	refs, errs := doc.DecodeProviderReferences()
	for _, err := range errs {
		r.log.Warn().Err(err).Str("source", doc.Source).Msg("skipping malformed provider reference")
	}
	skipped := 0
	for _, ref := range refs {
		if ref.GroupID == "" || len(ref.ProviderGroups) == 0 {
			skipped++
			continue
		}
		table[string(ref.GroupID)] = append(table[string(ref.GroupID)], ref.Groups()...)
	}
	if skipped > 0 {
		r.log.Debug().Int("skipped", skipped).Str("source", doc.Source).Msg("provider references without id or groups")
	}
	return table, ctx.Err()
}

// remoteDoc is an external provider document. Most hosts serve
// {"provider_groups":[...]}; some wrap it in provider_references.
type remoteDoc struct {
	ProviderGroups     []model.ProviderGroupEntry `json:"provider_groups"`
	ProviderReferences []model.ProviderReference  `json:"provider_references"`
}

func (d remoteDoc) groups() []model.ProviderGroup {
	out := make([]model.ProviderGroup, 0, len(d.ProviderGroups))
	for _, e := range d.ProviderGroups {
		out = append(out, e.Canonical())
	}
	for _, ref := range d.ProviderReferences {
		out = append(out, ref.Groups()...)
	}
	return out
}

var errNoGroups = errors.New("document has no provider_groups")

// decodeRemote reads one external provider document.
func decodeRemote(r io.Reader) ([]model.ProviderGroup, error) {
	var d remoteDoc
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode provider document: %w", err)
	}
	if d.ProviderGroups == nil && d.ProviderReferences == nil {
		return nil, errNoGroups
	}
	return d.groups(), nil
}

// LoadReferenceFile loads a file-level provider reference document, as hoisted
// from an index entry, into a table keyed by provider_group_id.
func LoadReferenceFile(ctx context.Context, opener fetch.Opener, source string) (model.ProviderReferenceTable, error) {
	rc, err := opener.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var d remoteDoc
	if err := json.NewDecoder(rc).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	table := make(model.ProviderReferenceTable)
	for _, ref := range d.ProviderReferences {
		if ref.GroupID == "" {
			continue
		}
		table[string(ref.GroupID)] = append(table[string(ref.GroupID)], ref.Groups()...)
	}
	return table, nil
}
