package model

// CanonicalRateRecord is the engine's sole output: one negotiated price for
// one billing code and one provider NPI. Provider fields are nil when nothing
// resolved.
type CanonicalRateRecord struct {
	BillingCode     string   `parquet:"billing_code" json:"billing_code"`
	BillingCodeType string   `parquet:"billing_code_type" json:"billing_code_type"`
	Description     string   `parquet:"description" json:"description"`
	NegotiatedRate  float64  `parquet:"negotiated_rate" json:"negotiated_rate"`
	NegotiatedType  string   `parquet:"negotiated_type" json:"negotiated_type"`
	BillingClass    string   `parquet:"billing_class" json:"billing_class"`
	ServiceCodes    []string `parquet:"service_codes,list" json:"service_codes"`
	ExpirationDate  string   `parquet:"expiration_date" json:"expiration_date"`
	ProviderNPI     *string  `parquet:"provider_npi,optional" json:"provider_npi"`
	ProviderName    *string  `parquet:"provider_name,optional" json:"provider_name"`
	ProviderTIN     *string  `parquet:"provider_tin,optional" json:"provider_tin"`
	Payer           string   `parquet:"payer" json:"payer"`

	// Context carried from the item and the index entry.
	BillingCodeModifiers   []string `parquet:"billing_code_modifiers,list" json:"billing_code_modifiers,omitempty"`
	NegotiationArrangement string   `parquet:"negotiation_arrangement" json:"negotiation_arrangement,omitempty"`
	PlanName               string   `parquet:"plan_name" json:"plan_name,omitempty"`
	PlanID                 string   `parquet:"plan_id" json:"plan_id,omitempty"`
	PlanMarketType         string   `parquet:"plan_market_type" json:"plan_market_type,omitempty"`
	SourceURL              string   `parquet:"source_url" json:"source_url,omitempty"`
	RecordHash             []byte   `parquet:"record_hash" json:"-"`
}

// RecordColumns returns the ordered column names for COPY into mrf.rate_records.
func RecordColumns() []string {
	return []string{
		"run_id",
		"record_hash",
		"billing_code",
		"billing_code_type",
		"description",
		"negotiated_rate",
		"negotiated_type",
		"billing_class",
		"service_codes",
		"expiration_date",
		"provider_npi",
		"provider_name",
		"provider_tin",
		"payer",
		"billing_code_modifiers",
		"negotiation_arrangement",
		"plan_name",
		"plan_id",
		"plan_market_type",
		"source_url",
	}
}

// CopyValues returns the record values in the same order as RecordColumns(),
// minus the leading run_id which the sink supplies.
func (r *CanonicalRateRecord) CopyValues() []any {
	return []any{
		r.RecordHash,
		r.BillingCode,
		r.BillingCodeType,
		r.Description,
		r.NegotiatedRate,
		r.NegotiatedType,
		r.BillingClass,
		r.ServiceCodes,
		optStr(r.ExpirationDate),
		r.ProviderNPI,
		r.ProviderName,
		r.ProviderTIN,
		r.Payer,
		r.BillingCodeModifiers,
		optStr(r.NegotiationArrangement),
		optStr(r.PlanName),
		optStr(r.PlanID),
		optStr(r.PlanMarketType),
		r.SourceURL,
	}
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
