package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/model"
)

// Doer is the subset of *http.Client the fetch layer needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Opener opens a source (URL or local path) as a decompressed byte stream.
type Opener interface {
	Open(ctx context.Context, source string) (io.ReadCloser, error)
}

// Prober reports the size of a source without reading it.
type Prober interface {
	Probe(ctx context.Context, source string) (size int64, known bool, err error)
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each request up to the response headers. Bodies are
	// bounded by the caller's context.
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	UserAgent      string
}

// DefaultOptions mirrors the retry policy used for index and rate downloads.
func DefaultOptions() Options {
	return Options{
		Timeout:        5 * time.Minute,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
	}
}

// Client fetches local and remote MRF sources with retries and transparent
// gzip decompression.
type Client struct {
	doer    Doer
	opts    Options
	headers http.Header
	log     zerolog.Logger
	// headerTimeout is set when the transport enforces Timeout itself.
	headerTimeout bool
}

// NewClient creates a Client. A nil doer uses a dedicated *http.Client whose
// transport enforces Timeout as its ResponseHeaderTimeout; an injected doer
// gets the same bound from the client.
func NewClient(doer Doer, opts Options, log zerolog.Logger) *Client {
	var headerTimeout bool
	if doer == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = opts.Timeout
		doer = &http.Client{Transport: tr}
		headerTimeout = opts.Timeout > 0
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	h := DefaultHeaders()
	if opts.UserAgent != "" {
		h.Set("User-Agent", opts.UserAgent)
	}
	return &Client{
		doer:          doer,
		opts:          opts,
		headers:       h,
		log:           log.With().Str("component", "fetch").Logger(),
		headerTimeout: headerTimeout,
	}
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Status)
}

// Transient reports whether retrying may help.
func (e *StatusError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// LocalPath strips a file:// prefix.
func LocalPath(source string) string {
	return strings.TrimPrefix(source, "file://")
}

// Compression returns "gzip" when the source name carries a gzip extension,
// ignoring any query string, and "none" otherwise.
func Compression(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".gz", ".gzip":
		return "gzip"
	}
	return "none"
}

// Open returns the decompressed content of source. The caller must Close it.
func (c *Client) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	var (
		body   io.ReadCloser
		err    error
		cancel = func() {}
	)
	if IsRemote(source) {
		body, cancel, err = c.get(ctx, source)
	} else {
		body, err = os.Open(LocalPath(source))
	}
	if err != nil {
		return nil, err
	}
	rc, err := Decompress(body, source)
	if err != nil {
		body.Close()
		cancel()
		return nil, err
	}
	return &readCloser{Reader: rc, closers: []func() error{rc.Close, body.Close, func() error { cancel(); return nil }}}, nil
}

// get issues a GET with retries. The returned cancel func releases the
// request context and must be called once the body is done.
func (c *Client) get(ctx context.Context, source string) (io.ReadCloser, context.CancelFunc, error) {
	var (
		resp     *http.Response
		attempts int
		cancel   context.CancelFunc
	)
	op := func() error {
		attempts++
		reqCtx, reqCancel := context.WithCancel(ctx)
		r, err := c.do(reqCtx, http.MethodGet, source)
		if err != nil {
			reqCancel()
			return classify(err)
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			io.Copy(io.Discard, io.LimitReader(r.Body, 4096))
			r.Body.Close()
			reqCancel()
			se := &StatusError{URL: source, Status: r.StatusCode}
			if se.Transient() {
				return se
			}
			return backoff.Permanent(se)
		}
		resp, cancel = r, reqCancel
		return nil
	}
	if err := c.retry(ctx, source, op); err != nil {
		var se *StatusError
		if errors.As(err, &se) && !se.Transient() {
			return nil, nil, err
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &model.TransientIOError{URL: source, Attempts: attempts, Err: err}
	}
	return resp.Body, cancel, nil
}

// do sends one request. The timeout covers the wait for response headers
// only; reqCtx keeps governing the body afterwards. Injected doers have no
// transport to configure, so the wait is bounded here instead.
func (c *Client) do(reqCtx context.Context, method, source string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(reqCtx, method, source, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	if c.opts.Timeout <= 0 || c.headerTimeout {
		return c.doer.Do(req)
	}
	headerCtx, stop := context.WithCancel(reqCtx)
	defer stop()
	timer := time.AfterFunc(c.opts.Timeout, stop)
	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.doer.Do(req)
		done <- result{resp, err}
	}()
	select {
	case r := <-done:
		timer.Stop()
		return r.resp, r.err
	case <-headerCtx.Done():
		if reqCtx.Err() != nil {
			r := <-done
			if r.resp != nil {
				r.resp.Body.Close()
			}
			return nil, reqCtx.Err()
		}
		// Header timeout: abandon the response and let reqCtx cancellation
		// unblock the transport.
		go func() {
			if r := <-done; r.resp != nil {
				r.resp.Body.Close()
			}
		}()
		return nil, fmt.Errorf("%s %s: no response within %s", method, source, c.opts.Timeout)
	}
}

func (c *Client) retry(ctx context.Context, source string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("url", source).Dur("retry_in", wait).Msg("fetch attempt failed")
	})
}

// classify marks errors that retrying cannot fix as permanent.
func classify(err error) error {
	var pe *backoff.PermanentError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	return err
}

// Probe reports the byte size of source: os.Stat for local files, a HEAD
// request's Content-Length for remote ones.
func (c *Client) Probe(ctx context.Context, source string) (int64, bool, error) {
	if !IsRemote(source) {
		fi, err := os.Stat(LocalPath(source))
		if err != nil {
			return 0, false, err
		}
		return fi.Size(), true, nil
	}
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	resp, err := c.do(reqCtx, http.MethodHead, source)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, false, &StatusError{URL: source, Status: resp.StatusCode}
	}
	if resp.ContentLength < 0 {
		return 0, false, nil
	}
	return resp.ContentLength, true, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

// Decompress wraps r in a gzip reader when the stream starts with the gzip
// magic bytes. A gzip extension without the magic (a server that already
// decoded the body) reads as plain JSON.
func Decompress(r io.Reader, source string) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek %s: %w", source, err)
	}
	if len(head) == 2 && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", source, err)
		}
		return zr, nil
	}
	return io.NopCloser(br), nil
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (rc *readCloser) Close() error {
	var errs []error
	for _, c := range rc.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Opener = (*Client)(nil)
	_ Prober = (*Client)(nil)
)
