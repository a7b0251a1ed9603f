package payer

import (
	"github.com/gyeh/mrfscan/internal/model"
)

// Step is one composable reshape. A step owns the item it receives and may
// modify it in place.
type Step func(dc *DocContext, item model.InNetworkItem) []model.InNetworkItem

// Pipeline applies its steps in order, feeding every output item of one step
// to the next.
type Pipeline struct {
	name  string
	steps []Step
}

// NewPipeline creates a named pipeline.
func NewPipeline(name string, steps ...Step) *Pipeline {
	return &Pipeline{name: name, steps: steps}
}

func (p *Pipeline) Name() string { return p.name }

// Reshape clones item so the caller's copy is never modified.
func (p *Pipeline) Reshape(dc *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	items := []model.InNetworkItem{item.Clone()}
	for _, step := range p.steps {
		var next []model.InNetworkItem
		for _, it := range items {
			next = append(next, step(dc, it)...)
		}
		if len(next) == 0 {
			return nil
		}
		items = next
	}
	return items
}

// cachedPipeline is a Pipeline whose Preprocess hook caches embedded provider
// groups for AttachCachedProviders.
type cachedPipeline struct {
	*Pipeline
}

// WithProviderCache adds the provider cache Preprocess hook to p.
func WithProviderCache(p *Pipeline) Strategy {
	return cachedPipeline{p}
}

func (c cachedPipeline) Preprocess(doc *model.RateDocument) *DocContext {
	dc := &DocContext{Source: doc.Source, Providers: make(map[string][]model.ProviderGroupEntry)}
	refs, _ := doc.DecodeProviderReferences()
	for _, ref := range refs {
		if ref.GroupID == "" || len(ref.ProviderGroups) == 0 {
			continue
		}
		id := string(ref.GroupID)
		dc.Providers[id] = append(dc.Providers[id], ref.ProviderGroups...)
	}
	return dc
}

var (
	_ Strategy     = (*Pipeline)(nil)
	_ Preprocessor = cachedPipeline{}
)
