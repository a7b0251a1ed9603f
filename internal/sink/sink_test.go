package sink

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/config"
	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/normalize"
	"github.com/gyeh/mrfscan/internal/parquetread"
)

func strPtr(s string) *string { return &s }

func record(code, npi string, rate float64) model.CanonicalRateRecord {
	rec := model.CanonicalRateRecord{
		BillingCode:     code,
		BillingCodeType: "CPT",
		Description:     "office visit",
		NegotiatedRate:  rate,
		NegotiatedType:  "negotiated",
		BillingClass:    "professional",
		ServiceCodes:    []string{"11"},
		ExpirationDate:  "2025-12-31",
		ProviderNPI:     strPtr(npi),
		ProviderTIN:     strPtr("123456789"),
		Payer:           "Aetna",
		SourceURL:       "https://example.com/rates.json",
	}
	rec.RecordHash = normalize.RecordHash(&rec)
	return rec
}

func feed(recs ...model.CanonicalRateRecord) <-chan *model.CanonicalRateRecord {
	ch := make(chan *model.CanonicalRateRecord, len(recs))
	for i := range recs {
		ch <- &recs[i]
	}
	close(ch)
	return ch
}

func TestDedup(t *testing.T) {
	d := NewDedup(2)
	a := sha256.Sum256([]byte("a"))
	b := sha256.Sum256([]byte("b"))
	c := sha256.Sum256([]byte("c"))

	if d.Seen(a[:]) || d.Seen(b[:]) {
		t.Fatal("first sightings must not be duplicates")
	}
	if !d.Seen(a[:]) {
		t.Error("expected a to be a duplicate")
	}
	if d.Seen(c[:]) || d.Seen(c[:]) {
		t.Error("a full set must let new hashes through")
	}
	if !d.Full() || d.Len() != 2 {
		t.Errorf("full = %v, len = %d", d.Full(), d.Len())
	}
	if d.Seen(nil) || d.Seen([]byte("short")) {
		t.Error("malformed hashes never match")
	}

	var off *Dedup = NewDedup(0)
	if off.Seen(a[:]) || off.Seen(a[:]) {
		t.Error("disabled dedup never matches")
	}
}

func TestParquet_BatchesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := NewParquet(ParquetOptions{Dir: dir, RunID: "run1", BatchSize: 2}, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	n, err := p.Consume(ctx, "Aetna", model.FileDescriptor{}, feed(
		record("99213", "1111111111", 100),
		record("99213", "2222222222", 100),
		record("99214", "1111111111", 150.5),
	))
	if err != nil || n != 3 {
		t.Fatalf("Consume = %d, %v", n, err)
	}
	if _, err := p.Consume(ctx, "Blue Cross", model.FileDescriptor{}, feed(record("27447", "3333333333", 2000))); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	batches := p.Batches()
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d: %+v", len(batches), batches)
	}
	wantKeys := []string{
		"aetna/2025-03-01/rates_run1_00001.parquet",
		"aetna/2025-03-01/rates_run1_00002.parquet",
		"blue_cross/2025-03-01/rates_run1_00003.parquet",
	}
	wantCounts := []int{2, 1, 1}
	for i, b := range batches {
		if b.Key != wantKeys[i] || b.Records != wantCounts[i] {
			t.Errorf("batch %d = %+v", i, b)
		}
	}

	got, err := parquetread.ReadAll(batches[0].Path, 0)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	want := record("99213", "2222222222", 100)
	r := got[1]
	if r.BillingCode != want.BillingCode || r.NegotiatedRate != want.NegotiatedRate ||
		r.ProviderNPI == nil || *r.ProviderNPI != "2222222222" ||
		string(r.RecordHash) != string(want.RecordHash) || len(r.ServiceCodes) != 1 {
		t.Errorf("round trip mismatch: %+v", r)
	}
	if r.ProviderName != nil {
		t.Errorf("expected nil provider name, got %q", *r.ProviderName)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*", "*", "*"+PartialSuffix))
	if len(matches) != 0 {
		t.Errorf("partial files left behind: %v", matches)
	}
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, localPath, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	if u.err != nil {
		return u.err
	}
	u.keys = append(u.keys, key)
	return nil
}

func TestParquet_UploadRemovesLocal(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	p := NewParquet(ParquetOptions{Dir: dir, RunID: "r", BatchSize: 10, Uploader: up}, zerolog.Nop())
	ctx := context.Background()

	if _, err := p.Consume(ctx, "Aetna", model.FileDescriptor{}, feed(record("99213", "1111111111", 90))); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(ctx); err != nil {
		t.Fatal(err)
	}
	b := p.Batches()[0]
	if !b.Uploaded || b.Path != "" {
		t.Errorf("batch = %+v", b)
	}
	if len(up.keys) != 1 || !strings.HasPrefix(up.keys[0], "aetna/") {
		t.Errorf("uploaded keys = %v", up.keys)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "aetna", "*", "*.parquet"))
	if len(files) != 0 {
		t.Errorf("expected local batch removed, found %v", files)
	}
}

func TestParquet_UploadFailureKeepsLocal(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{err: errors.New("denied")}
	p := NewParquet(ParquetOptions{Dir: dir, RunID: "r", BatchSize: 1, Uploader: up}, zerolog.Nop())

	_, err := p.Consume(context.Background(), "Aetna", model.FileDescriptor{}, feed(record("99213", "1111111111", 90)))
	if err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("expected upload error, got %v", err)
	}
	b := p.Batches()[0]
	if b.Uploaded || b.Path == "" {
		t.Errorf("batch = %+v", b)
	}
	if _, err := os.Stat(b.Path); err != nil {
		t.Errorf("local batch should remain: %v", err)
	}
}

func TestParquet_ConsumeStopsOnCancel(t *testing.T) {
	p := NewParquet(ParquetOptions{Dir: t.TempDir(), RunID: "r"}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan *model.CanonicalRateRecord)
	if _, err := p.Consume(ctx, "Aetna", model.FileDescriptor{}, ch); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestS3Uploader(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []*http.Request
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, r)
		body = b
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	local := filepath.Join(t.TempDir(), "batch.parquet")
	os.WriteFile(local, []byte("PAR1 fake"), 0644)

	u, err := NewS3Uploader(context.Background(), config.S3Config{
		Bucket:          "rates",
		Prefix:          "mrf",
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}
	if err := u.Upload(context.Background(), local, "aetna/2025-03-01/rates_r_00001.parquet"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	r := reqs[0]
	if r.Method != http.MethodPut {
		t.Errorf("method = %s", r.Method)
	}
	if r.URL.Path != "/rates/mrf/aetna/2025-03-01/rates_r_00001.parquet" {
		t.Errorf("path = %s", r.URL.Path)
	}
	sum, _ := normalize.FileHash(local)
	if got := r.Header.Get("X-Amz-Meta-Sha256"); got != sum {
		t.Errorf("sha256 metadata = %q, want %q", got, sum)
	}
	if !strings.Contains(string(body), "PAR1 fake") {
		t.Errorf("body = %q", body)
	}
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	if _, err := NewS3Uploader(context.Background(), config.S3Config{}, zerolog.Nop()); err == nil {
		t.Error("expected error without bucket")
	}
}
