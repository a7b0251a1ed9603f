// Package payer holds per-payer strategies that reshape vendor quirks in
// in_network items before generic parsing.
package payer

import (
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/model"
)

// DocContext is per-document state built by a Preprocessor. It is written
// once before the first item and read-only afterwards.
type DocContext struct {
	Source string
	// Providers caches embedded provider groups by provider_group_id.
	Providers map[string][]model.ProviderGroupEntry
}

// Handler is anything registered for a payer.
type Handler interface {
	Name() string
}

// Reshaper rewrites one raw item into zero or more items.
type Reshaper interface {
	Reshape(dc *DocContext, item model.InNetworkItem) []model.InNetworkItem
}

// Preprocessor builds a DocContext from the document header.
type Preprocessor interface {
	Preprocess(doc *model.RateDocument) *DocContext
}

// Strategy is a Handler that can reshape items.
type Strategy interface {
	Handler
	Reshaper
}

type identity struct{}

func (identity) Name() string { return "identity" }

func (identity) Reshape(_ *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	return []model.InNetworkItem{item}
}

// Identity returns the handler used for unknown payers.
func Identity() Strategy { return identity{} }

// Entry binds a handler to its aliases.
type Entry struct {
	Aliases []string
	Handler Handler
}

// Register builds an Entry.
func Register(h Handler, aliases ...string) Entry {
	return Entry{Aliases: aliases, Handler: h}
}

// Alias returns a copy of entries where alias also maps to the handler that
// answers to target. It reports false when no entry answers to target.
func Alias(entries []Entry, alias, target string) ([]Entry, bool) {
	out := slices.Clone(entries)
	for i, e := range out {
		if slices.ContainsFunc(e.Aliases, func(a string) bool { return strings.EqualFold(a, target) }) {
			out[i].Aliases = append(slices.Clone(e.Aliases), alias)
			return out, true
		}
	}
	return entries, false
}

// Registry maps lower-cased payer aliases to strategies. It is immutable
// after NewRegistry and safe for concurrent use.
type Registry struct {
	handlers map[string]Strategy
}

// NewRegistry builds a registry. A handler that cannot reshape is logged and
// registered as identity.
func NewRegistry(log zerolog.Logger, entries ...Entry) *Registry {
	log = log.With().Str("component", "payer").Logger()
	r := &Registry{handlers: make(map[string]Strategy)}
	for _, e := range entries {
		s, ok := e.Handler.(Strategy)
		if !ok {
			log.Warn().Str("handler", e.Handler.Name()).Strs("aliases", e.Aliases).
				Msg("handler does not reshape items; using identity")
			s = Identity()
		}
		for _, a := range e.Aliases {
			r.handlers[strings.ToLower(strings.TrimSpace(a))] = s
		}
	}
	return r
}

// Lookup returns the strategy registered for name, ignoring case. Unknown
// names get the identity strategy.
func (r *Registry) Lookup(name string) Strategy {
	if s, ok := r.handlers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s
	}
	return Identity()
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Aliases returns every registered alias with the handler it maps to, sorted
// by alias.
func (r *Registry) Aliases() [][2]string {
	out := make([][2]string, 0, len(r.handlers))
	for a, s := range r.handlers {
		out = append(out, [2]string{a, s.Name()})
	}
	slices.SortFunc(out, func(a, b [2]string) int { return strings.Compare(a[0], b[0]) })
	return out
}

// Context runs the strategy's Preprocess hook when it has one.
func Context(s Strategy, doc *model.RateDocument) *DocContext {
	if p, ok := s.(Preprocessor); ok {
		if dc := p.Preprocess(doc); dc != nil {
			return dc
		}
	}
	return &DocContext{Source: doc.Source}
}
