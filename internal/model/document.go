package model

import "encoding/json"

// RateDocument is the part of a rate file that is needed before items can be
// parsed: top-level metadata and the raw provider_references entries. The
// whole-document path also fills InNetwork.
type RateDocument struct {
	Source              string            `json:"-"`
	ReportingEntityName string            `json:"reporting_entity_name"`
	ReportingEntityType string            `json:"reporting_entity_type"`
	LastUpdatedOn       string            `json:"last_updated_on"`
	Version             string            `json:"version"`
	ProviderReferences  []json.RawMessage `json:"provider_references"`
	InNetwork           []json.RawMessage `json:"in_network"`
}

// SetMeta records a top-level scalar field. Unknown keys are ignored.
func (d *RateDocument) SetMeta(key, value string) {
	switch key {
	case "reporting_entity_name":
		d.ReportingEntityName = value
	case "reporting_entity_type":
		d.ReportingEntityType = value
	case "last_updated_on":
		d.LastUpdatedOn = value
	case "version":
		d.Version = value
	}
}

// DecodeProviderReferences decodes every provider_references entry, skipping
// (and returning) entries that fail to decode.
func (d *RateDocument) DecodeProviderReferences() ([]ProviderReference, []error) {
	refs := make([]ProviderReference, 0, len(d.ProviderReferences))
	var errs []error
	for i, raw := range d.ProviderReferences {
		var ref ProviderReference
		if err := json.Unmarshal(raw, &ref); err != nil {
			errs = append(errs, &ItemParseError{Index: i, Err: err})
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errs
}
