package payer

import (
	"encoding/json"
	"slices"
	"strings"
	"unicode"

	"github.com/gyeh/mrfscan/internal/model"
)

// Passthrough returns the item unchanged.
func Passthrough(_ *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	return []model.InNetworkItem{item}
}

// NormalizeNPIs keeps digits only, drops empty and all-zero NPIs and removes
// duplicates while preserving order.
func NormalizeNPIs(_ *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	for gi := range item.NegotiatedRates.Groups {
		g := &item.NegotiatedRates.Groups[gi]
		for ei := range g.ProviderGroups {
			g.ProviderGroups[ei].NPI = cleanNPIs(g.ProviderGroups[ei].NPI)
		}
	}
	return []model.InNetworkItem{item}
}

func cleanNPIs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, npi := range in {
		d := digits(npi)
		if d == "" || strings.Trim(d, "0") == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, strings.TrimSpace(s))
}

// NormalizeTINs strips punctuation from TIN values and copies a rate-group
// level tin onto inline provider groups that have none.
func NormalizeTINs(_ *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	for gi := range item.NegotiatedRates.Groups {
		g := &item.NegotiatedRates.Groups[gi]
		if g.TIN != nil {
			g.TIN.Value = cleanTIN(g.TIN.Value)
		}
		for ei := range g.ProviderGroups {
			e := &g.ProviderGroups[ei]
			e.TIN.Value = cleanTIN(e.TIN.Value)
			if e.TIN.Value == "" && g.TIN != nil {
				e.TIN = *g.TIN
			}
		}
	}
	return []model.InNetworkItem{item}
}

func cleanTIN(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// UnifyRates turns a bare negotiated_rates number into one grouped rate
// with no providers.
func UnifyRates(_ *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	if item.NegotiatedRates.Kind == model.RatesDirect {
		item.NegotiatedRates = model.GroupedRates(model.RateGroup{
			NegotiatedPrices: []model.NegotiatedPrice{{NegotiatedRate: item.NegotiatedRates.Direct}},
		})
	}
	return []model.InNetworkItem{item}
}

var (
	itemRenames     = map[string]string{"bundled_codes": "related_codes", "prior_authorization_required": "prior_auth_required"}
	priceRenames    = map[string]string{"additional_fees": "fees", "covered_services": "service_details", "modifiers": "billing_code_modifier"}
	providerRenames = map[string]string{"provider_specialty": "specialty"}
)

// RenameFields maps vendor field names onto their canonical names. Renamed
// price fields that have a typed counterpart fill it when it is empty.
func RenameFields(_ *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	rename(item.Extra, itemRenames)
	for gi := range item.NegotiatedRates.Groups {
		g := &item.NegotiatedRates.Groups[gi]
		for pi := range g.NegotiatedPrices {
			p := &g.NegotiatedPrices[pi]
			if raw, ok := p.Extra["modifiers"]; ok && len(p.BillingCodeModifier) == 0 {
				var mods model.StringList
				if json.Unmarshal(raw, &mods) == nil {
					p.BillingCodeModifier = mods
					delete(p.Extra, "modifiers")
				}
			}
			if raw, ok := p.Extra["covered_services"]; ok && len(p.ServiceCode) == 0 {
				p.ServiceCode = coveredServiceCodes(raw)
			}
			rename(p.Extra, priceRenames)
		}
		for ei := range g.ProviderGroups {
			e := &g.ProviderGroups[ei]
			rename(e.Extra, providerRenames)
			if raw, ok := e.Extra["providers"]; ok {
				e.Extra["providers"] = renameInList(raw, providerRenames)
			}
		}
	}
	return []model.InNetworkItem{item}
}

func rename(m map[string]json.RawMessage, names map[string]string) {
	for from, to := range names {
		if v, ok := m[from]; ok {
			if _, taken := m[to]; !taken {
				m[to] = v
			}
			delete(m, from)
		}
	}
}

func renameInList(raw json.RawMessage, names map[string]string) json.RawMessage {
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return raw
	}
	for _, m := range list {
		rename(m, names)
	}
	out, err := json.Marshal(list)
	if err != nil {
		return raw
	}
	return out
}

func coveredServiceCodes(raw json.RawMessage) []string {
	var services []struct {
		ServiceCode model.StringList `json:"service_code"`
	}
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil
	}
	var codes []string
	for _, s := range services {
		for _, c := range s.ServiceCode {
			if !slices.Contains(codes, c) {
				codes = append(codes, c)
			}
		}
	}
	return codes
}

// DropNonPositive removes price entries whose rate is not a positive number,
// then groups left without prices. An item with nothing left is dropped.
func DropNonPositive(_ *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	rs := &item.NegotiatedRates
	if rs.Kind == model.RatesDirect {
		if !positive(rs.Direct) {
			return nil
		}
		return []model.InNetworkItem{item}
	}
	groups := rs.Groups[:0]
	for _, g := range rs.Groups {
		g.NegotiatedPrices = slices.DeleteFunc(g.NegotiatedPrices, func(p model.NegotiatedPrice) bool {
			return !positive(p.NegotiatedRate)
		})
		if len(g.NegotiatedPrices) > 0 {
			groups = append(groups, g)
		}
	}
	rs.Groups = groups
	if len(groups) == 0 {
		return nil
	}
	return []model.InNetworkItem{item}
}

func positive(v model.RateValue) bool {
	f, err := v.Float()
	return err == nil && f > 0
}

// DropEmptyCode removes items without a billing code.
func DropEmptyCode(_ *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	if strings.TrimSpace(item.BillingCode) == "" {
		return nil
	}
	return []model.InNetworkItem{item}
}

// AttachCachedProviders replaces provider reference ids found in the
// document's provider cache with the cached groups. Ids not in the cache are
// left for the resolver.
func AttachCachedProviders(dc *DocContext, item model.InNetworkItem) []model.InNetworkItem {
	if dc == nil || len(dc.Providers) == 0 {
		return []model.InNetworkItem{item}
	}
	for gi := range item.NegotiatedRates.Groups {
		g := &item.NegotiatedRates.Groups[gi]
		refs := g.ProviderReferences[:0]
		for _, id := range g.ProviderReferences {
			cached, ok := dc.Providers[string(id)]
			if !ok {
				refs = append(refs, id)
				continue
			}
			g.ProviderGroups = append(g.ProviderGroups, cached...)
		}
		g.ProviderReferences = refs
	}
	return []model.InNetworkItem{item}
}
