package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/fetch"
	"github.com/gyeh/mrfscan/internal/fetch/fetchtest"
	"github.com/gyeh/mrfscan/internal/model"
)

func testOptions() fetch.Options {
	return fetch.Options{
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestOpen_LocalPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	os.WriteFile(path, []byte(`{"blobs":[]}`), 0644)

	c := fetch.NewClient(nil, testOptions(), zerolog.Nop())
	rc, err := c.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, rc); got != `{"blobs":[]}` {
		t.Errorf("got %q", got)
	}
}

func TestOpen_LocalGzipDetectedByMagic(t *testing.T) {
	// No .gz extension: detection must come from the content.
	path := filepath.Join(t.TempDir(), "rates.json")
	os.WriteFile(path, gz(t, `{"in_network":[]}`), 0644)

	c := fetch.NewClient(nil, testOptions(), zerolog.Nop())
	rc, err := c.Open(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, rc); got != `{"in_network":[]}` {
		t.Errorf("got %q", got)
	}
}

func TestOpen_GzipExtensionWithoutMagicReadsPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json.gz")
	os.WriteFile(path, []byte(`{"in_network":[]}`), 0644)

	c := fetch.NewClient(nil, testOptions(), zerolog.Nop())
	rc, err := c.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, rc); got != `{"in_network":[]}` {
		t.Errorf("got %q", got)
	}
}

func TestOpen_RemoteRetriesTransientStatus(t *testing.T) {
	doer := fetchtest.NewFakeDoer(t,
		fetchtest.NewStringResponse(http.StatusServiceUnavailable, "busy"),
		fetchtest.NewStringResponse(http.StatusOK, `{"ok":true}`),
	)
	c := fetch.NewClient(doer, testOptions(), zerolog.Nop())

	rc, err := c.Open(context.Background(), "https://example.com/index.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, rc); got != `{"ok":true}` {
		t.Errorf("got %q", got)
	}
	reqs := doer.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if ua := reqs[0].Header.Get("User-Agent"); ua == "" {
		t.Error("expected a User-Agent header")
	}
}

func TestOpen_RemoteNotFoundIsNotRetried(t *testing.T) {
	doer := fetchtest.NewFakeDoer(t, fetchtest.NewStringResponse(http.StatusNotFound, "nope"))
	c := fetch.NewClient(doer, testOptions(), zerolog.Nop())

	_, err := c.Open(context.Background(), "https://example.com/missing.json")
	var se *fetch.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusNotFound {
		t.Errorf("status = %d", se.Status)
	}
	if n := len(doer.Requests()); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestOpen_RemoteExhaustsRetries(t *testing.T) {
	doer := fetchtest.NewFakeDoerReplies(t,
		fetchtest.Reply{Err: errors.New("connection reset")},
		fetchtest.Reply{Resp: fetchtest.NewStringResponse(http.StatusBadGateway, "")},
		fetchtest.Reply{Err: errors.New("connection reset")},
	)
	c := fetch.NewClient(doer, testOptions(), zerolog.Nop())

	_, err := c.Open(context.Background(), "https://example.com/rates.json")
	var te *model.TransientIOError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientIOError, got %v", err)
	}
	if te.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", te.Attempts)
	}
}

func TestOpen_RemoteGzipBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(gz(t, `{"reporting_structure":[]}`))),
		Header:     make(http.Header),
	}
	c := fetch.NewClient(fetchtest.NewFakeDoer(t, resp), testOptions(), zerolog.Nop())

	rc, err := c.Open(context.Background(), "https://example.com/toc.json.gz?sig=abc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, rc); got != `{"reporting_structure":[]}` {
		t.Errorf("got %q", got)
	}
}

func TestOpen_DefaultClientHeaderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Timeout = 100 * time.Millisecond
	opts.MaxAttempts = 1
	c := fetch.NewClient(nil, opts, zerolog.Nop())

	start := time.Now()
	_, err := c.Open(context.Background(), srv.URL+"/slow.json")
	var te *model.TransientIOError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientIOError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("open took %s", elapsed)
	}
}

func TestOpen_InjectedDoerHeaderTimeout(t *testing.T) {
	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	opts.MaxAttempts = 1
	c := fetch.NewClient(hangingDoer{}, opts, zerolog.Nop())

	start := time.Now()
	_, err := c.Open(context.Background(), "https://example.com/slow.json")
	var te *model.TransientIOError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientIOError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("open took %s", elapsed)
	}
}

// hangingDoer blocks until the request is canceled.
type hangingDoer struct{}

func (hangingDoer) Do(req *http.Request) (*http.Response, error) {
	<-req.Context().Done()
	return nil, req.Context().Err()
}

func TestProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	os.WriteFile(path, []byte("0123456789"), 0644)

	c := fetch.NewClient(nil, testOptions(), zerolog.Nop())
	size, known, err := c.Probe(context.Background(), path)
	if err != nil || !known || size != 10 {
		t.Fatalf("local probe = %d, %v, %v", size, known, err)
	}

	doer := fetchtest.NewFakeDoer(t, fetchtest.NewStringResponse(http.StatusOK, "abcdef"))
	c = fetch.NewClient(doer, testOptions(), zerolog.Nop())
	size, known, err = c.Probe(context.Background(), "https://example.com/rates.json")
	if err != nil || !known || size != 6 {
		t.Fatalf("remote probe = %d, %v, %v", size, known, err)
	}
	if m := doer.Requests()[0].Method; m != http.MethodHead {
		t.Errorf("method = %s, want HEAD", m)
	}
}

func TestCompression(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"https://x/rates.json.gz", "gzip"},
		{"https://x/rates.json.gz?X-Amz-Signature=1", "gzip"},
		{"/data/rates.JSON.GZIP", "gzip"},
		{"https://x/rates.json", "none"},
		{"rates", "none"},
	}
	for _, tt := range tests {
		if got := fetch.Compression(tt.source); got != tt.want {
			t.Errorf("Compression(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}
