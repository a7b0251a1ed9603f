package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile_Valid(t *testing.T) {
	path := writeConfig(t, `
payers:
  - name: aetna
    index_url: https://example.com/aetna_index.json
  - name: Centene Ambetter
    index_url: /data/centene.json
    handler: centene
billing_codes: ["99213", "27447"]
code_types:
  - cpt
  - HCPC
fetch:
  timeout: 90s
resolver:
  concurrency: 4
stream:
  stall_budget: 2m
output:
  dir: /tmp/out
  s3:
    bucket: rates
    prefix: mrf
`)

	var c Config
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(c.Payers) != 2 {
		t.Fatalf("expected 2 payers, got %d", len(c.Payers))
	}
	if got := c.Payers[0].HandlerName(); got != "aetna" {
		t.Errorf("handler defaults to name, got %q", got)
	}
	if got := c.Payers[1].HandlerName(); got != "centene" {
		t.Errorf("handler = %q", got)
	}
	if c.CodeTypes[0] != "CPT" || c.CodeTypes[1] != "HCPCS" {
		t.Errorf("code types not canonicalized: %v", c.CodeTypes)
	}
	if len(c.BillingCodes) != 2 {
		t.Errorf("billing codes = %v", c.BillingCodes)
	}
	if c.Fetch.Timeout != 90*time.Second || c.Fetch.MaxAttempts != 3 {
		t.Errorf("fetch = %+v", c.Fetch)
	}
	if c.Resolver.Concurrency != 4 || c.Resolver.Timeout != 30*time.Second {
		t.Errorf("resolver = %+v", c.Resolver)
	}
	if c.Stream.StallBudget != 2*time.Minute || c.Stream.FileBudget != 10*time.Minute {
		t.Errorf("stream = %+v", c.Stream)
	}
	if c.Output.BatchSize != 100_000 || !c.Output.S3.Enabled() {
		t.Errorf("output = %+v", c.Output)
	}
}

func TestLoadFromFile_NoWhitelistMeansNil(t *testing.T) {
	path := writeConfig(t, "payers: []\n")

	var c Config
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.BillingCodes != nil {
		t.Errorf("expected nil whitelist, got %v", c.BillingCodes)
	}
	if len(c.CodeTypes) != 0 {
		t.Errorf("expected all code types, got %v", c.CodeTypes)
	}
}

func TestLoadFromFile_BillingCodesFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "codes.txt"), []byte("# knee\n27447\n\n99213, 99214\n"), 0644)
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("billing_codes: [\"70553\"]\nbilling_codes_file: codes.txt\n"), 0644)

	var c Config
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	want := []string{"70553", "27447", "99213", "99214"}
	if len(c.BillingCodes) != len(want) {
		t.Fatalf("billing codes = %v, want %v", c.BillingCodes, want)
	}
	for i := range want {
		if c.BillingCodes[i] != want[i] {
			t.Errorf("billing codes[%d] = %q, want %q", i, c.BillingCodes[i], want[i])
		}
	}
}

func TestLoadFromFile_EmptyCodesFileAllowsNothing(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "codes.txt"), []byte("# nothing yet\n"), 0644)
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("billing_codes_file: codes.txt\n"), 0644)

	var c Config
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.BillingCodes == nil || len(c.BillingCodes) != 0 {
		t.Errorf("expected empty non-nil whitelist, got %#v", c.BillingCodes)
	}
}

func TestLoadFromFile_UnknownCodeType(t *testing.T) {
	path := writeConfig(t, "code_types:\n  - CPT\n  - BOGUS\n")

	var c Config
	if err := c.LoadFromFile(path); err == nil {
		t.Fatal("expected error for unknown code type")
	}
}

func TestLoadFromFile_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"payer without url", "payers:\n  - name: aetna\n"},
		{"payer without name", "payers:\n  - index_url: x.json\n"},
		{"negative concurrency", "resolver:\n  concurrency: -1\n"},
		{"negative max files", "max_files_per_payer: -2\n"},
		{"bad duration", "fetch:\n  timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			if err := c.LoadFromFile(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	var c Config
	err := c.LoadFromFile("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv_R2(t *testing.T) {
	t.Setenv("MRFSCAN_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/mrf")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("R2_BUCKET_NAME", "rates")
	t.Setenv("S3_ENDPOINT", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("R2_ACCOUNT_ID", "abc123")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_ACCESS_KEY_SECRET", "secret")

	c := Default()
	c.ApplyEnv()
	if c.DSN != "postgres://localhost/mrf" {
		t.Errorf("DSN = %q", c.DSN)
	}
	s3 := c.Output.S3
	if s3.Bucket != "rates" || s3.Endpoint != "https://abc123.r2.cloudflarestorage.com" || s3.Region != "auto" {
		t.Errorf("s3 = %+v", s3)
	}
	if s3.AccessKeyID != "key" || s3.AccessKeySecret != "secret" {
		t.Error("expected R2 credentials from env")
	}
}

func TestApplyEnv_KeepsExplicitDSN(t *testing.T) {
	t.Setenv("MRFSCAN_DSN", "postgres://env")
	c := Config{DSN: "postgres://flag"}
	c.ApplyEnv()
	if c.DSN != "postgres://flag" {
		t.Errorf("DSN = %q", c.DSN)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil {
		t.Error("expected error without payers")
	}
	c.Payers = []Payer{{Name: "Aetna", IndexURL: "idx.json"}}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	c.PayerFilter = "cigna"
	if err := c.Validate(); err == nil {
		t.Error("expected error for unconfigured payer filter")
	}
	c.PayerFilter = "aetna"
	if got := c.SelectedPayers(); len(got) != 1 || got[0].Name != "Aetna" {
		t.Errorf("SelectedPayers = %v", got)
	}
	if err := c.ValidateWithDSN(); err == nil {
		t.Error("expected error without DSN")
	}
}
