package normalize

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/gyeh/mrfscan/internal/model"
)

func strPtr(s string) *string { return &s }

func TestCodeKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{" 99213 ", "99213"},
		{"j1234", "J1234"},
		{"j-1234", "J-1234"},
		{" J11.00", "J11.00"},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := CodeKey(tt.in); got != tt.want {
			t.Errorf("CodeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDate(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2025-12-31", "2025-12-31"},
		{"12/31/2025", "2025-12-31"},
		{"20251231", "2025-12-31"},
		{"9999-12-31", "9999-12-31"},
		{" someday ", "someday"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Date(tt.in); got != tt.want {
			t.Errorf("Date(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_RejectsUnknownCodeType(t *testing.T) {
	if _, err := New(nil, []string{"CPT", "bogus"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestAllow(t *testing.T) {
	n, err := New([]string{"99213", "J1234"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !n.Allow("99213", "CPT") || !n.Allow("j1234", "HCPCS") {
		t.Error("whitelisted code rejected")
	}
	if n.Allow("99999", "CPT") || n.Allow("", "CPT") {
		t.Error("non-whitelisted code allowed")
	}

	all, _ := New(nil, []string{"cpt"})
	if !all.Allow("anything", "CPT") || all.Allow("anything", "HCPCS") {
		t.Error("code type filter misapplied")
	}

	none, _ := New([]string{}, nil)
	if none.Allow("99213", "CPT") {
		t.Error("empty whitelist should allow nothing")
	}
}

func TestNormalize_PunctuationVariantsAreNotWhitelisted(t *testing.T) {
	n, _ := New([]string{"J1100", "99213"}, nil)
	for _, code := range []string{"J11.00", "99-213", "9 9213", "99213.", "J 1100"} {
		rec := model.CanonicalRateRecord{BillingCode: code, BillingCodeType: "CPT", NegotiatedRate: 10}
		if n.Normalize(&rec) {
			t.Errorf("code %q emitted as %q", code, rec.BillingCode)
		}
	}

	rec := model.CanonicalRateRecord{BillingCode: " j1100 ", BillingCodeType: "HCPCS", NegotiatedRate: 10}
	if !n.Normalize(&rec) {
		t.Fatal("case variant of a whitelisted code rejected")
	}
	if rec.BillingCode != "J1100" {
		t.Errorf("billing code = %q, want J1100", rec.BillingCode)
	}
}

func TestNormalize(t *testing.T) {
	n, _ := New([]string{"99213"}, nil)
	rec := model.CanonicalRateRecord{
		BillingCode:     " 99213",
		BillingCodeType: "cpt",
		NegotiatedRate:  125.5,
		NegotiatedType:  "Negotiated",
		BillingClass:    "Professional",
		ServiceCodes:    []string{"11", " 11", ""},
		ExpirationDate:  "12/31/2030",
		ProviderName:    strPtr("  Acme   Clinic "),
		Payer:           "BCBS IL",
	}
	if !n.Normalize(&rec) {
		t.Fatal("record rejected")
	}
	if rec.BillingCode != "99213" || rec.BillingCodeType != "CPT" || rec.BillingClass != "professional" || rec.NegotiatedType != "negotiated" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !reflect.DeepEqual(rec.ServiceCodes, []string{"11"}) || rec.ExpirationDate != "2030-12-31" {
		t.Errorf("service codes %v, date %s", rec.ServiceCodes, rec.ExpirationDate)
	}
	if *rec.ProviderName != "Acme Clinic" || rec.Payer != "bcbs_il" {
		t.Errorf("name %q payer %q", *rec.ProviderName, rec.Payer)
	}
	if len(rec.RecordHash) != 32 {
		t.Errorf("hash length %d", len(rec.RecordHash))
	}

	bad := model.CanonicalRateRecord{BillingCode: "99213", NegotiatedRate: 0}
	if n.Normalize(&bad) {
		t.Error("zero rate emitted")
	}
}

func TestRecordHash(t *testing.T) {
	a := model.CanonicalRateRecord{BillingCode: "1", NegotiatedRate: 10, ProviderNPI: strPtr("123"), SourceURL: "a"}
	b := a
	b.SourceURL = "b"
	if !bytes.Equal(RecordHash(&a), RecordHash(&b)) {
		t.Error("hash depends on source url")
	}
	b.ProviderNPI = strPtr("456")
	if bytes.Equal(RecordHash(&a), RecordHash(&b)) {
		t.Error("hash ignores npi")
	}

	// Blob-list files carry no plan id; the plan name keeps their prices apart.
	c := a
	c.PlanName = "blob_0"
	d := a
	d.PlanName = "blob_1"
	if bytes.Equal(RecordHash(&c), RecordHash(&d)) {
		t.Error("hash ignores plan name")
	}
}
