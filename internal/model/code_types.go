package model

import "strings"

// CodeType is one of the billing code types defined by the price
// transparency schema.
type CodeType struct {
	Name    string   // canonical name, e.g. "MS-DRG"
	Aliases []string // spellings seen in payer files
}

// AllCodeTypes lists the supported billing code types in canonical order.
var AllCodeTypes = []CodeType{
	{Name: "CPT"},
	{Name: "HCPCS", Aliases: []string{"HCPC"}},
	{Name: "ICD", Aliases: []string{"ICD-10", "ICD10"}},
	{Name: "MS-DRG", Aliases: []string{"MSDRG", "MS_DRG"}},
	{Name: "R-DRG"},
	{Name: "S-DRG"},
	{Name: "APS-DRG"},
	{Name: "AP-DRG"},
	{Name: "APR-DRG", Aliases: []string{"APRDRG"}},
	{Name: "APC"},
	{Name: "NDC"},
	{Name: "HIPPS"},
	{Name: "LOCAL"},
	{Name: "EAPG"},
	{Name: "CDT"},
	{Name: "RC", Aliases: []string{"REV", "REVENUE"}},
	{Name: "CSTM-ALL"},
}

// CodeTypeByName returns the CodeType for name or one of its aliases,
// ignoring case and surrounding space.
func CodeTypeByName(name string) (CodeType, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, ct := range AllCodeTypes {
		if ct.Name == n {
			return ct, true
		}
		for _, a := range ct.Aliases {
			if a == n {
				return ct, true
			}
		}
	}
	return CodeType{}, false
}

// CodeTypeNames returns the canonical names of all code types.
func CodeTypeNames() []string {
	names := make([]string, len(AllCodeTypes))
	for i, ct := range AllCodeTypes {
		names[i] = ct.Name
	}
	return names
}
