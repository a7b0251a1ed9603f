package fetchtest

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gyeh/mrfscan/internal/fetch"
)

// FakeDoer implements fetch.Doer so callers can run tests without making
// outbound HTTP requests.
type FakeDoer struct {
	t         testing.TB
	mu        sync.Mutex
	responses []Reply
	requests  []*http.Request
}

// Reply is one queued result: either a response or a transport error.
type Reply struct {
	Resp *http.Response
	Err  error
}

// NewFakeDoer returns a FakeDoer seeded with the responses that should be
// returned for each Do call.
func NewFakeDoer(t testing.TB, responses ...*http.Response) *FakeDoer {
	replies := make([]Reply, len(responses))
	for i, r := range responses {
		replies[i] = Reply{Resp: r}
	}
	return NewFakeDoerReplies(t, replies...)
}

// NewFakeDoerReplies is NewFakeDoer with transport errors allowed.
func NewFakeDoerReplies(t testing.TB, replies ...Reply) *FakeDoer {
	return &FakeDoer{t: t, responses: append([]Reply(nil), replies...)}
}

// Do records the request and returns the next queued reply.
func (f *FakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		f.t.Errorf("fake http client has no responses left for request %s %s", req.Method, req.URL.String())
		return nil, io.ErrUnexpectedEOF
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.Resp, r.Err
}

// Requests returns the HTTP requests captured so far.
func (f *FakeDoer) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

// NewStringResponse builds a minimal http.Response with the provided status
// code and body string.
func NewStringResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(strings.NewReader(body)),
		Header:        make(http.Header),
		ContentLength: int64(len(body)),
	}
}

var _ fetch.Doer = (*FakeDoer)(nil)
