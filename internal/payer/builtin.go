package payer

import "github.com/rs/zerolog"

// Builtin returns the registry of known payers.
func Builtin(log zerolog.Logger) *Registry {
	return NewRegistry(log, BuiltinEntries()...)
}

// BuiltinEntries lists the built-in payer registrations.
func BuiltinEntries() []Entry {
	passthrough := NewPipeline("passthrough", Passthrough)
	return []Entry{
		Register(NewPipeline("centene", UnifyRates, NormalizeNPIs, NormalizeTINs),
			"centene", "centene_fidelis", "fidelis", "centene_ambetter"),
		Register(NewPipeline("bcbsil", RenameFields, NormalizeNPIs),
			"bcbsil", "blue_cross_blue_shield_illinois"),
		Register(NewPipeline("bcbs_il", UnifyRates, NormalizeNPIs, NormalizeTINs),
			"bcbs_il"),
		Register(WithProviderCache(NewPipeline("bcbs_mi", UnifyRates, AttachCachedProviders)),
			"bcbs_mi", "bcbsm"),
		Register(WithProviderCache(NewPipeline("bcbs_fl", UnifyRates, DropNonPositive, AttachCachedProviders)),
			"bcbs_fl", "florida_blue"),
		Register(passthrough,
			"aetna", "aetna_florida", "aetna_health_inc",
			"horizon", "horizon_bcbs", "horizon_healthcare",
			"bcbs_ks", "bcbs_la", "example"),
		Register(NewPipeline("uhc_ga", DropEmptyCode, NormalizeTINs),
			"uhc_ga"),
	}
}
