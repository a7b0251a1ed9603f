package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/fetch"
	"github.com/gyeh/mrfscan/internal/model"
)

func rateDoc(refs ...string) *model.RateDocument {
	d := &model.RateDocument{Source: "rates.json"}
	for _, r := range refs {
		d.ProviderReferences = append(d.ProviderReferences, json.RawMessage(r))
	}
	return d
}

func singleAttemptClient() *fetch.Client {
	return fetch.NewClient(nil, fetch.Options{Timeout: 5 * time.Second, MaxAttempts: 1}, zerolog.Nop())
}

func testRemoteOptions() RemoteOptions {
	return RemoteOptions{Concurrency: 4, Timeout: 5 * time.Second, MaxAttempts: 3, InitialBackoff: time.Millisecond}
}

func TestInline_Resolve(t *testing.T) {
	doc := rateDoc(
		`{"provider_group_id": 1, "provider_groups": [{"npi": [1111111111, "2222222222"], "tin": {"type":"ein","value":"11-1111111"}}]}`,
		`{"provider_group_id": "2", "provider_groups": [{"npi": "3333333333", "tin": "22"}, {"npi": [4444444444], "tin": "33"}]}`,
		`{"provider_group_id": 3}`,
		`"garbage"`,
	)
	table, err := NewInline(zerolog.Nop()).Resolve(context.Background(), doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected 2 ids, got %v", table)
	}
	if !reflect.DeepEqual(table["1"][0].NPIs, []string{"1111111111", "2222222222"}) {
		t.Errorf("group 1 npis = %v", table["1"][0].NPIs)
	}
	g2 := table["2"]
	if len(g2) != 2 || *g2[0].TIN != "22" || *g2[1].TIN != "33" {
		t.Errorf("group 2 should keep a TIN per group: %+v", g2)
	}
}

func TestInline_Idempotent(t *testing.T) {
	doc := rateDoc(`{"provider_group_id": 1, "provider_groups": [{"npi": [1], "tin": "9"}]}`)
	r := NewInline(zerolog.Nop())
	a, _ := r.Resolve(context.Background(), doc)
	b, _ := r.Resolve(context.Background(), doc)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("resolution differs: %v vs %v", a, b)
	}
}

func TestRemote_Resolve(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/a.json":
			fmt.Fprint(w, `{"provider_groups":[{"npi":[1234567890],"tin":{"type":"ein","value":"1"}}]}`)
		case "/wrapped.json":
			fmt.Fprint(w, `{"provider_references":[{"provider_group_id":9,"provider_groups":[{"npi":"5","tin":"2"}]}]}`)
		case "/gone.json":
			http.NotFound(w, r)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	doc := rateDoc(
		fmt.Sprintf(`{"provider_group_id": 1, "location": %q}`, srv.URL+"/a.json"),
		fmt.Sprintf(`{"provider_group_id": 2, "location": %q}`, srv.URL+"/a.json"),
		fmt.Sprintf(`{"provider_group_id": 3, "location": %q}`, srv.URL+"/wrapped.json"),
		fmt.Sprintf(`{"provider_group_id": 4, "location": %q}`, srv.URL+"/gone.json"),
		fmt.Sprintf(`{"provider_group_id": 5, "location": %q}`, srv.URL+"/broken.json"),
	)
	r := NewRemote(singleAttemptClient(), testRemoteOptions(), zerolog.Nop())
	table, err := r.Resolve(context.Background(), doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, id := range []string{"1", "2", "3"} {
		if len(table[id]) != 1 {
			t.Errorf("id %s: %+v", id, table[id])
		}
	}
	if _, ok := table["4"]; ok {
		t.Error("404 group should be omitted")
	}
	if _, ok := table["5"]; ok {
		t.Error("failing group should be omitted")
	}
	// a.json once, wrapped once, gone once, broken three times.
	if got := hits.Load(); got != 6 {
		t.Errorf("requests = %d, want 6", got)
	}
}

func TestRemote_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"provider_groups":[{"npi":[1],"tin":"7"}]}`)
	}))
	defer srv.Close()

	var refs []string
	for i := range 20 {
		refs = append(refs, fmt.Sprintf(`{"provider_group_id": %d, "location": "%s/p%d.json"}`, i, srv.URL, i))
	}
	opts := testRemoteOptions()
	opts.Concurrency = 3
	table, err := NewRemote(singleAttemptClient(), opts, zerolog.Nop()).Resolve(context.Background(), rateDoc(refs...))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(table) != 20 {
		t.Errorf("resolved %d ids, want 20", len(table))
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak in-flight requests = %d, want at most 3", got)
	}
}

func TestRemote_TimeoutOmitsGroup(t *testing.T) {
	var hangs atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hang.json" {
			hangs.Add(1)
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, `{"provider_groups":[{"npi":[1],"tin":"7"}]}`)
	}))
	defer srv.Close()

	doc := rateDoc(
		fmt.Sprintf(`{"provider_group_id": 1, "location": %q}`, srv.URL+"/ok.json"),
		fmt.Sprintf(`{"provider_group_id": 2, "location": %q}`, srv.URL+"/hang.json"),
	)
	opts := testRemoteOptions()
	opts.Timeout = 100 * time.Millisecond
	opts.MaxAttempts = 2

	start := time.Now()
	table, err := NewRemote(singleAttemptClient(), opts, zerolog.Nop()).Resolve(context.Background(), doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(table["1"]) != 1 {
		t.Errorf("group 1 = %+v", table["1"])
	}
	if _, ok := table["2"]; ok {
		t.Error("timed out group should be omitted")
	}
	if got := hangs.Load(); got != 2 {
		t.Errorf("attempts on hanging url = %d, want 2", got)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("resolve took %s", elapsed)
	}
}

func TestRemote_Idempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"provider_groups":[{"npi":[1,2],"tin":"7"}]}`)
	}))
	defer srv.Close()

	doc := rateDoc(fmt.Sprintf(`{"provider_group_id": 1, "location": %q}`, srv.URL+"/p.json"))
	r := NewRemote(singleAttemptClient(), testRemoteOptions(), zerolog.Nop())
	a, err := r.Resolve(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("resolution differs: %v vs %v", a, b)
	}
}

func TestRemote_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := rateDoc(`{"provider_group_id": 1, "location": "http://127.0.0.1:1/p.json"}`)
	r := NewRemote(singleAttemptClient(), testRemoteOptions(), zerolog.Nop())
	if _, err := r.Resolve(ctx, doc); err == nil {
		t.Fatal("expected context error")
	}
}

func TestLoadReferenceFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"provider_references":[
		  {"provider_group_id":1,"provider_groups":[{"npi":[1],"tin":"a"}]},
		  {"provider_group_id":2,"provider_groups":[{"npi":[2],"tin":"b"}]}
		]}`)
	}))
	defer srv.Close()

	table, err := LoadReferenceFile(context.Background(), singleAttemptClient(), srv.URL+"/refs.json")
	if err != nil {
		t.Fatalf("LoadReferenceFile: %v", err)
	}
	own := model.ProviderReferenceTable{"1": {{NPIs: []string{"99"}}}}
	own.MergeMissing(table)
	if own["1"][0].NPIs[0] != "99" || len(own["2"]) != 1 {
		t.Errorf("merged table = %+v", own)
	}
}
