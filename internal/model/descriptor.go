package model

// FileKind classifies a file referenced by an index.
type FileKind string

const (
	KindRateFile          FileKind = "rate-file"
	KindAllowedAmountFile FileKind = "allowed-amount-file"
	KindUnknown           FileKind = "unknown"
)

// FileDescriptor is one file referenced by a payer index.
type FileDescriptor struct {
	URL                  string   `json:"url"`
	Kind                 FileKind `json:"kind"`
	PlanName             string   `json:"plan_name"`
	PlanID               string   `json:"plan_id,omitempty"`
	PlanMarketType       string   `json:"plan_market_type,omitempty"`
	Description          string   `json:"description,omitempty"`
	ProviderReferenceURL string   `json:"provider_reference_url,omitempty"`

	// Position of the entry in the index, for diagnostics.
	StructureIndex int `json:"reporting_structure_index"`
	FileIndex      int `json:"file_index"`
}

// Parseable reports whether the file can carry in-network rates. Legacy blob
// entries have unknown kind and are attempted.
func (d FileDescriptor) Parseable() bool {
	return d.Kind == KindRateFile || d.Kind == KindUnknown
}
