package payer

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/model"
)

func item(t *testing.T, doc string) model.InNetworkItem {
	t.Helper()
	var it model.InNetworkItem
	if err := json.Unmarshal([]byte(doc), &it); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	return it
}

type nameOnly struct{}

func (nameOnly) Name() string { return "name_only" }

func TestRegistry_LookupIsCaseInsensitive(t *testing.T) {
	r := Builtin(zerolog.Nop())
	for _, name := range []string{"Centene", "CENTENE_FIDELIS", " fidelis "} {
		if got := r.Lookup(name).Name(); got != "centene" {
			t.Errorf("Lookup(%q) = %s, want centene", name, got)
		}
	}
	if got := r.Lookup("nobody").Name(); got != "identity" {
		t.Errorf("unknown payer got %s, want identity", got)
	}
	if r.Has("nobody") || !r.Has("Florida_Blue") {
		t.Error("Has disagrees with registrations")
	}
}

func TestRegistry_WarnsOnHandlerWithoutReshape(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(zerolog.New(&buf), Register(nameOnly{}, "lazy"))
	if got := r.Lookup("lazy").Name(); got != "identity" {
		t.Errorf("got %s, want identity", got)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), "name_only") {
		t.Errorf("expected warning, got %q", buf.String())
	}
}

func TestRegistry_Aliases(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), Register(NewPipeline("p", Passthrough), "B", "a"))
	want := [][2]string{{"a", "p"}, {"b", "p"}}
	if got := r.Aliases(); !reflect.DeepEqual(got, want) {
		t.Errorf("aliases = %v, want %v", got, want)
	}
}

func TestPipeline_DoesNotModifyInput(t *testing.T) {
	in := item(t, `{"billing_code":"1","negotiated_rates":[{"provider_groups":[{"npi":["12-34", "1234"]}],"negotiated_prices":[{"negotiated_rate":1}]}]}`)
	out := NewPipeline("p", NormalizeNPIs).Reshape(nil, in)
	if len(out) != 1 {
		t.Fatalf("got %d items", len(out))
	}
	if !reflect.DeepEqual([]string(out[0].NegotiatedRates.Groups[0].ProviderGroups[0].NPI), []string{"1234"}) {
		t.Errorf("normalized npis = %v", out[0].NegotiatedRates.Groups[0].ProviderGroups[0].NPI)
	}
	if got := in.NegotiatedRates.Groups[0].ProviderGroups[0].NPI; len(got) != 2 || got[0] != "12-34" {
		t.Errorf("input modified: %v", got)
	}
}

func TestNormalizeNPIs(t *testing.T) {
	in := item(t, `{"negotiated_rates":[{"provider_groups":[{"npi":[" 1234567890", "0000000000", "", "1234567890", "987-654-3210"]}]}]}`)
	out := NormalizeNPIs(nil, in)
	got := []string(out[0].NegotiatedRates.Groups[0].ProviderGroups[0].NPI)
	if !reflect.DeepEqual(got, []string{"1234567890", "9876543210"}) {
		t.Errorf("npis = %v", got)
	}
}

func TestNormalizeTINs_HoistsGroupTIN(t *testing.T) {
	in := item(t, `{"negotiated_rates":[{"tin":{"type":"ein","value":"12-3456789"},"provider_groups":[{"npi":[1]},{"npi":[2],"tin":"98.7654321"}]}]}`)
	g := NormalizeTINs(nil, in)[0].NegotiatedRates.Groups[0]
	if g.ProviderGroups[0].TIN.Value != "123456789" || g.ProviderGroups[0].TIN.Type != "ein" {
		t.Errorf("hoisted tin = %+v", g.ProviderGroups[0].TIN)
	}
	if g.ProviderGroups[1].TIN.Value != "987654321" {
		t.Errorf("own tin = %+v", g.ProviderGroups[1].TIN)
	}
}

func TestUnifyRates(t *testing.T) {
	out := UnifyRates(nil, item(t, `{"billing_code":"1","negotiated_rates":42.5}`))
	rs := out[0].NegotiatedRates
	if rs.Kind != model.RatesGrouped || len(rs.Groups) != 1 || len(rs.Groups[0].NegotiatedPrices) != 1 {
		t.Fatalf("unified = %+v", rs)
	}
	if f, _ := rs.Groups[0].NegotiatedPrices[0].NegotiatedRate.Float(); f != 42.5 {
		t.Errorf("rate = %v", f)
	}
}

func TestRenameFields(t *testing.T) {
	in := item(t, `{
	  "billing_code": "1",
	  "bundled_codes": ["a"],
	  "negotiated_rates": [{
	    "provider_groups": [{"npi": [1], "provider_specialty": "x", "providers": [{"npi": 1, "provider_specialty": "y"}]}],
	    "negotiated_prices": [{"negotiated_rate": 1, "modifiers": ["26"], "covered_services": [{"service_code": "11"}, {"service_code": ["11", "22"]}], "additional_fees": []}]
	  }]
	}`)
	out := RenameFields(nil, in)[0]
	if _, ok := out.Extra["related_codes"]; !ok {
		t.Errorf("item extras = %v", out.Extra)
	}
	p := out.NegotiatedRates.Groups[0].NegotiatedPrices[0]
	if !reflect.DeepEqual([]string(p.BillingCodeModifier), []string{"26"}) {
		t.Errorf("modifiers = %v", p.BillingCodeModifier)
	}
	if !reflect.DeepEqual([]string(p.ServiceCode), []string{"11", "22"}) {
		t.Errorf("service codes = %v", p.ServiceCode)
	}
	if _, ok := p.Extra["service_details"]; !ok {
		t.Errorf("price extras = %v", p.Extra)
	}
	if _, ok := p.Extra["fees"]; !ok {
		t.Errorf("price extras = %v", p.Extra)
	}
	e := out.NegotiatedRates.Groups[0].ProviderGroups[0]
	if _, ok := e.Extra["specialty"]; !ok {
		t.Errorf("provider extras = %v", e.Extra)
	}
	if !strings.Contains(string(e.Extra["providers"]), `"specialty"`) {
		t.Errorf("nested providers = %s", e.Extra["providers"])
	}
}

func TestDropNonPositive(t *testing.T) {
	in := item(t, `{"negotiated_rates":[
	  {"negotiated_prices":[{"negotiated_rate":0},{"negotiated_rate":"5"}]},
	  {"negotiated_prices":[{"negotiated_rate":-1},{"negotiated_rate":"N/A"}]}
	]}`)
	out := DropNonPositive(nil, in)
	if len(out) != 1 || len(out[0].NegotiatedRates.Groups) != 1 || len(out[0].NegotiatedRates.Groups[0].NegotiatedPrices) != 1 {
		t.Fatalf("unexpected result: %+v", out)
	}
	if got := DropNonPositive(nil, item(t, `{"negotiated_rates":0}`)); len(got) != 0 {
		t.Errorf("direct zero kept: %+v", got)
	}
}

func TestDropEmptyCode(t *testing.T) {
	if got := DropEmptyCode(nil, item(t, `{"billing_code":" "}`)); len(got) != 0 {
		t.Errorf("empty code kept")
	}
	if got := DropEmptyCode(nil, item(t, `{"billing_code":"1"}`)); len(got) != 1 {
		t.Errorf("code dropped")
	}
}

func TestCachedProviders(t *testing.T) {
	doc := &model.RateDocument{
		Source: "bcbs.json",
		ProviderReferences: []json.RawMessage{
			json.RawMessage(`{"provider_group_id": 1, "provider_groups": [{"npi": [111], "tin": "9"}]}`),
		},
	}
	s := Builtin(zerolog.Nop()).Lookup("bcbsm")
	dc := Context(s, doc)
	if len(dc.Providers["1"]) != 1 {
		t.Fatalf("cache = %+v", dc.Providers)
	}
	out := s.Reshape(dc, item(t, `{"billing_code":"1","negotiated_rates":[{"provider_references":[1,2],"negotiated_prices":[{"negotiated_rate":3}]}]}`))
	g := out[0].NegotiatedRates.Groups[0]
	if !reflect.DeepEqual(g.ProviderReferences, []model.GroupID{"2"}) {
		t.Errorf("remaining refs = %v", g.ProviderReferences)
	}
	if len(g.ProviderGroups) != 1 || g.ProviderGroups[0].NPI[0] != "111" {
		t.Errorf("attached groups = %+v", g.ProviderGroups)
	}
}

func TestContext_DefaultsWithoutPreprocess(t *testing.T) {
	dc := Context(Identity(), &model.RateDocument{Source: "x"})
	if dc == nil || dc.Source != "x" || dc.Providers != nil {
		t.Errorf("dc = %+v", dc)
	}
}

func TestAlias(t *testing.T) {
	base := BuiltinEntries()
	entries, ok := Alias(base, "Ambetter of Georgia", "centene")
	if !ok {
		t.Fatal("expected centene to be found")
	}
	r := NewRegistry(zerolog.Nop(), entries...)
	if got := r.Lookup("ambetter of georgia").Name(); got != "centene" {
		t.Errorf("alias resolves to %s", got)
	}
	if NewRegistry(zerolog.Nop(), base...).Has("Ambetter of Georgia") {
		t.Error("Alias must not modify the input entries")
	}
	if _, ok := Alias(base, "x", "no_such_handler"); ok {
		t.Error("expected unknown target to fail")
	}
}
