package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ProviderGroup is the canonical identity of one provider group.
type ProviderGroup struct {
	NPIs      []string `json:"npis"`
	TIN       *string  `json:"tin,omitempty"`
	GroupName *string  `json:"group_name,omitempty"`
}

// ProviderReferenceTable maps a provider_group_id to the groups listed under
// it, in source order. It is written once per document and read-only after.
type ProviderReferenceTable map[string][]ProviderGroup

// NPICount returns the total number of NPIs across all groups.
func (t ProviderReferenceTable) NPICount() int {
	n := 0
	for _, groups := range t {
		for _, g := range groups {
			n += len(g.NPIs)
		}
	}
	return n
}

// MergeMissing copies entries from other whose ids are absent from t.
func (t ProviderReferenceTable) MergeMissing(other ProviderReferenceTable) {
	for id, groups := range other {
		if _, ok := t[id]; !ok {
			t[id] = groups
		}
	}
}

// GroupID is a provider_group_id; sources use both numbers and strings.
type GroupID string

func (g *GroupID) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*g = ""
		return nil
	}
	s, ok := scalarText(data)
	if !ok {
		return fmt.Errorf("provider_group_id: unsupported value %s", preview(data))
	}
	*g = GroupID(strings.TrimSpace(s))
	return nil
}

// NPIList is an NPI field normalized to an ordered list of strings. Sources
// send a single string, a single number, or a list of either.
type NPIList []string

func (l *NPIList) UnmarshalJSON(data []byte) error {
	out, err := decodeScalarList(data)
	if err != nil {
		return fmt.Errorf("npi: %w", err)
	}
	*l = out
	return nil
}

// StringList accepts a string, a number, or a list of them.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	out, err := decodeScalarList(data)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

func decodeScalarList(data []byte) ([]string, error) {
	d := bytes.TrimSpace(data)
	if isNull(d) {
		return nil, nil
	}
	if d[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(d, &items); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := scalarText(it)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	s, ok := scalarText(d)
	if !ok {
		return nil, fmt.Errorf("unsupported value %s", preview(d))
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	return []string{s}, nil
}

// TIN is a tax identifier. Sources send either {"type","value"} or a bare string.
type TIN struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

func (t *TIN) UnmarshalJSON(data []byte) error {
	d := bytes.TrimSpace(data)
	if isNull(d) {
		*t = TIN{}
		return nil
	}
	if d[0] == '{' {
		f, err := decodeFields(d)
		if err != nil {
			return fmt.Errorf("tin: %w", err)
		}
		t.Type = f.str("type")
		t.Value = f.str("value")
		if t.Value == "" {
			t.Value = f.str("tin")
		}
		return nil
	}
	s, ok := scalarText(d)
	if !ok {
		return fmt.Errorf("tin: unsupported value %s", preview(d))
	}
	*t = TIN{Value: strings.TrimSpace(s)}
	return nil
}

// ProviderGroupEntry is one provider_groups element as a payer wrote it.
type ProviderGroupEntry struct {
	NPI   NPIList
	TIN   TIN
	Name  string
	Extra map[string]json.RawMessage
}

func (e *ProviderGroupEntry) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if err := f.take("npi", &e.NPI); err != nil {
		return err
	}
	if err := f.take("tin", &e.TIN); err != nil {
		return err
	}
	e.Name = f.str("name")
	if e.Name == "" {
		e.Name = f.str("provider_group_name")
	}
	// Some vendors nest individual providers instead of a flat npi list.
	if len(e.NPI) == 0 {
		if raw, ok := f["providers"]; ok {
			var providers []struct {
				NPI NPIList `json:"npi"`
			}
			if err := json.Unmarshal(raw, &providers); err == nil {
				for _, p := range providers {
					e.NPI = append(e.NPI, p.NPI...)
				}
			}
		}
	}
	e.Extra = f.extra()
	return nil
}

// Canonical converts the entry into a ProviderGroup with de-duplicated NPIs.
func (e ProviderGroupEntry) Canonical() ProviderGroup {
	g := ProviderGroup{NPIs: dedupe(e.NPI)}
	if v := strings.TrimSpace(e.TIN.Value); v != "" {
		g.TIN = &v
	}
	if n := strings.TrimSpace(e.Name); n != "" {
		g.GroupName = &n
	}
	return g
}

// ProviderReference is one top-level provider_references element.
type ProviderReference struct {
	GroupID        GroupID
	Location       string
	ProviderGroups []ProviderGroupEntry
}

func (r *ProviderReference) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if err := f.take("provider_group_id", &r.GroupID); err != nil {
		return err
	}
	r.Location = f.str("location")
	groups, err := takeList[ProviderGroupEntry](f, "provider_groups")
	if err != nil {
		return err
	}
	r.ProviderGroups = groups
	return nil
}

// Groups returns the canonical groups of the reference.
func (r ProviderReference) Groups() []ProviderGroup {
	out := make([]ProviderGroup, 0, len(r.ProviderGroups))
	for _, e := range r.ProviderGroups {
		out = append(out, e.Canonical())
	}
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Text is a string field that some sources write as a number.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	s, _ := scalarText(data)
	*t = Text(strings.TrimSpace(s))
	return nil
}
