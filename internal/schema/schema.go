// Package schema classifies a rate document by how it carries provider
// identity.
package schema

import (
	"bytes"
	"encoding/json"

	"github.com/gyeh/mrfscan/internal/jsontok"
	"github.com/gyeh/mrfscan/internal/model"
)

// Description is the diagnostic view of a detection.
type Description struct {
	Kind           model.SchemaKind `json:"kind"`
	FirstEntryKeys []string         `json:"first_entry_keys"`
	ReferenceCount int              `json:"reference_count"`
}

// Detect inspects provider_references[0] only. A location means providers
// live in external documents; provider_groups means they are embedded.
// Location wins when both are present.
func Detect(doc *model.RateDocument) model.SchemaKind {
	return Describe(doc).Kind
}

// Describe reports the detected kind along with the keys it was derived from.
func Describe(doc *model.RateDocument) Description {
	d := Description{Kind: model.SchemaUnknown, FirstEntryKeys: []string{}}
	if doc == nil || len(doc.ProviderReferences) == 0 {
		return d
	}
	d.ReferenceCount = len(doc.ProviderReferences)
	keys, ok := objectKeys(doc.ProviderReferences[0])
	if !ok {
		return d
	}
	d.FirstEntryKeys = keys
	var hasLocation, hasGroups bool
	for _, k := range keys {
		switch k {
		case "location":
			hasLocation = true
		case "provider_groups":
			hasGroups = true
		}
	}
	switch {
	case hasLocation:
		d.Kind = model.ExternalProviders
	case hasGroups:
		d.Kind = model.EmbeddedProviders
	}
	return d
}

// objectKeys returns the top-level keys of raw in source order.
func objectKeys(raw json.RawMessage) ([]string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := jsontok.ExpectDelim(dec, '{'); err != nil {
		return nil, false
	}
	keys := []string{}
	for dec.More() {
		k, err := jsontok.Key(dec)
		if err != nil {
			return nil, false
		}
		keys = append(keys, k)
		if err := jsontok.Skip(dec); err != nil {
			return nil, false
		}
	}
	return keys, true
}
