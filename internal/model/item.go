package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// RateValue holds a negotiated_rate exactly as the source wrote it. It is
// coerced to a float only when a record is built.
type RateValue struct {
	raw []byte
}

// NewRateValue returns a RateValue holding f.
func NewRateValue(f float64) RateValue {
	return RateValue{raw: []byte(strconv.FormatFloat(f, 'f', -1, 64))}
}

func (v *RateValue) UnmarshalJSON(data []byte) error {
	v.raw = bytes.Clone(bytes.TrimSpace(data))
	return nil
}

func (v RateValue) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// Missing reports whether the source had no value.
func (v RateValue) Missing() bool { return isNull(v.raw) }

// Float coerces the value to a finite float64. Numeric strings are accepted.
func (v RateValue) Float() (float64, error) {
	if v.Missing() {
		return 0, errors.New("negotiated_rate missing")
	}
	s := string(v.raw)
	if v.raw[0] == '"' {
		if err := json.Unmarshal(v.raw, &s); err != nil {
			return 0, fmt.Errorf("negotiated_rate %s: %w", preview(v.raw), err)
		}
		s = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("negotiated_rate %q is not numeric", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("negotiated_rate %q is not finite", s)
	}
	return f, nil
}

// RateKind tags the two shapes negotiated_rates takes in the wild.
type RateKind int

const (
	// RatesGrouped is the standard list of rate groups.
	RatesGrouped RateKind = iota
	// RatesDirect is a bare number with no provider or price structure.
	RatesDirect
)

// RateSet is the tagged union Direct(value) | Grouped([]RateGroup).
type RateSet struct {
	Kind   RateKind
	Direct RateValue
	Groups []RateGroup
}

// DirectRate builds the bare-number arm.
func DirectRate(v RateValue) RateSet { return RateSet{Kind: RatesDirect, Direct: v} }

// GroupedRates builds the grouped arm.
func GroupedRates(groups ...RateGroup) RateSet { return RateSet{Kind: RatesGrouped, Groups: groups} }

func (s *RateSet) UnmarshalJSON(data []byte) error {
	d := bytes.TrimSpace(data)
	switch {
	case isNull(d):
		*s = RateSet{}
	case d[0] == '[':
		var groups []RateGroup
		if err := json.Unmarshal(d, &groups); err != nil {
			return err
		}
		*s = GroupedRates(groups...)
	case d[0] == '{':
		var g RateGroup
		if err := json.Unmarshal(d, &g); err != nil {
			return err
		}
		*s = GroupedRates(g)
	default:
		var v RateValue
		_ = v.UnmarshalJSON(d)
		*s = DirectRate(v)
	}
	return nil
}

// RateGroup is one negotiated_rates element.
type RateGroup struct {
	ProviderReferences []GroupID
	ProviderGroups     []ProviderGroupEntry
	NegotiatedPrices   []NegotiatedPrice
	// TIN set at rate-group level by some vendors.
	TIN   *TIN
	Extra map[string]json.RawMessage
}

func (g *RateGroup) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if raw, ok := f["provider_references"]; ok {
		delete(f, "provider_references")
		if err := g.decodeReferences(raw); err != nil {
			return err
		}
	}
	groups, err := takeList[ProviderGroupEntry](f, "provider_groups")
	if err != nil {
		return err
	}
	g.ProviderGroups = append(g.ProviderGroups, groups...)
	if g.NegotiatedPrices, err = takeList[NegotiatedPrice](f, "negotiated_prices"); err != nil {
		return err
	}
	if raw, ok := f["tin"]; ok && !isNull(raw) {
		var t TIN
		if err := f.take("tin", &t); err != nil {
			return err
		}
		g.TIN = &t
	}
	g.Extra = f.extra()
	return nil
}

// decodeReferences accepts a list of ids, a lone id, or reference objects
// that carry their own provider_groups.
func (g *RateGroup) decodeReferences(raw json.RawMessage) error {
	d := bytes.TrimSpace(raw)
	if isNull(d) {
		return nil
	}
	items := []json.RawMessage{d}
	if d[0] == '[' {
		if err := json.Unmarshal(d, &items); err != nil {
			return fmt.Errorf("provider_references: %w", err)
		}
	}
	for _, it := range items {
		it = bytes.TrimSpace(it)
		if len(it) > 0 && it[0] == '{' {
			var ref ProviderReference
			if err := json.Unmarshal(it, &ref); err != nil {
				return fmt.Errorf("provider_references: %w", err)
			}
			if ref.GroupID != "" {
				g.ProviderReferences = append(g.ProviderReferences, ref.GroupID)
			}
			g.ProviderGroups = append(g.ProviderGroups, ref.ProviderGroups...)
			continue
		}
		var id GroupID
		if err := id.UnmarshalJSON(it); err != nil {
			return fmt.Errorf("provider_references: %w", err)
		}
		if id != "" {
			g.ProviderReferences = append(g.ProviderReferences, id)
		}
	}
	return nil
}

// NegotiatedPrice is one negotiated_prices element.
type NegotiatedPrice struct {
	NegotiatedType        string
	NegotiatedRate        RateValue
	ExpirationDate        string
	ServiceCode           StringList
	BillingClass          string
	BillingCodeModifier   StringList
	AdditionalInformation string
	Extra                 map[string]json.RawMessage
}

func (p *NegotiatedPrice) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	p.NegotiatedType = f.str("negotiated_type")
	if raw, ok := f["negotiated_rate"]; ok {
		delete(f, "negotiated_rate")
		_ = p.NegotiatedRate.UnmarshalJSON(raw)
	}
	p.ExpirationDate = f.str("expiration_date")
	if err := f.take("service_code", &p.ServiceCode); err != nil {
		return err
	}
	p.BillingClass = f.str("billing_class")
	if err := f.take("billing_code_modifier", &p.BillingCodeModifier); err != nil {
		return err
	}
	p.AdditionalInformation = f.str("additional_information")
	p.Extra = f.extra()
	return nil
}

// InNetworkItem is one raw in_network element. Its polymorphic fields are
// already normalized; vendor-specific fields stay in Extra.
type InNetworkItem struct {
	NegotiationArrangement string
	Name                   string
	BillingCodeType        string
	BillingCodeTypeVersion string
	BillingCode            string
	Description            string
	NegotiatedRates        RateSet
	Extra                  map[string]json.RawMessage
}

func (it *InNetworkItem) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	out, err := DecodeItemFields(f)
	if err != nil {
		return err
	}
	*it = out
	return nil
}

// DecodeItemFields builds an item from its top-level key/value pairs. The map
// is consumed.
func DecodeItemFields(m map[string]json.RawMessage) (InNetworkItem, error) {
	f := fields(m)
	it := InNetworkItem{
		NegotiationArrangement: f.str("negotiation_arrangement"),
		Name:                   f.str("name"),
		BillingCodeType:        f.str("billing_code_type"),
		BillingCodeTypeVersion: f.str("billing_code_type_version"),
		BillingCode:            f.str("billing_code"),
		Description:            f.str("description"),
	}
	if err := f.take("negotiated_rates", &it.NegotiatedRates); err != nil {
		return it, err
	}
	it.Extra = f.extra()
	return it, nil
}

// Clone returns a deep copy that can be modified without touching it.
func (it InNetworkItem) Clone() InNetworkItem {
	out := it
	out.Extra = maps.Clone(it.Extra)
	if it.NegotiatedRates.Groups != nil {
		out.NegotiatedRates.Groups = make([]RateGroup, len(it.NegotiatedRates.Groups))
		for i, g := range it.NegotiatedRates.Groups {
			out.NegotiatedRates.Groups[i] = g.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the group.
func (g RateGroup) Clone() RateGroup {
	out := g
	out.ProviderReferences = slices.Clone(g.ProviderReferences)
	out.ProviderGroups = make([]ProviderGroupEntry, len(g.ProviderGroups))
	for i, e := range g.ProviderGroups {
		e.NPI = slices.Clone(e.NPI)
		e.Extra = maps.Clone(e.Extra)
		out.ProviderGroups[i] = e
	}
	out.NegotiatedPrices = make([]NegotiatedPrice, len(g.NegotiatedPrices))
	for i, p := range g.NegotiatedPrices {
		p.ServiceCode = slices.Clone(p.ServiceCode)
		p.BillingCodeModifier = slices.Clone(p.BillingCodeModifier)
		p.Extra = maps.Clone(p.Extra)
		out.NegotiatedPrices[i] = p
	}
	if g.TIN != nil {
		t := *g.TIN
		out.TIN = &t
	}
	out.Extra = maps.Clone(g.Extra)
	return out
}
