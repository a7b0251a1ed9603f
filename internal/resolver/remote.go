package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/mrfscan/internal/fetch"
	"github.com/gyeh/mrfscan/internal/model"
)

// RemoteOptions configures the external fetch pool.
type RemoteOptions struct {
	Concurrency    int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRemoteOptions returns the pool settings used when none are configured.
func DefaultRemoteOptions() RemoteOptions {
	return RemoteOptions{
		Concurrency:    10,
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// Remote fetches provider groups from the location of every provider
// reference. The opener is expected to make a single attempt per call;
// retries happen here.
type Remote struct {
	opener fetch.Opener
	opts   RemoteOptions
	log    zerolog.Logger
}

// NewRemote creates a Remote resolver. Zero option fields take defaults.
func NewRemote(opener fetch.Opener, opts RemoteOptions, log zerolog.Logger) *Remote {
	def := DefaultRemoteOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	return &Remote{
		opener: opener,
		opts:   opts,
		log:    log.With().Str("component", "resolver").Str("resolver", "remote").Logger(),
	}
}

// Resolve fetches every distinct location concurrently. A location that
// cannot be fetched is logged as a ResolutionFailure and its groups are
// left out; it never fails the document.
func (r *Remote) Resolve(ctx context.Context, doc *model.RateDocument) (model.ProviderReferenceTable, error) {
	refs, errs := doc.DecodeProviderReferences()
	for _, err := range errs {
		r.log.Warn().Err(err).Str("source", doc.Source).Msg("skipping malformed provider reference")
	}

	// Several ids may share one location; fetch each location once.
	idsByURL := make(map[string][]string)
	var urls []string
	for _, ref := range refs {
		if ref.GroupID == "" || ref.Location == "" {
			continue
		}
		if _, ok := idsByURL[ref.Location]; !ok {
			urls = append(urls, ref.Location)
		}
		idsByURL[ref.Location] = append(idsByURL[ref.Location], string(ref.GroupID))
	}

	var (
		mu       sync.Mutex
		results  = make(map[string][]model.ProviderGroup, len(urls))
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, u := range urls {
		g.Go(func() error {
			groups, err := r.fetchGroups(gctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				for _, id := range idsByURL[u] {
					fail := &model.ResolutionFailure{GroupID: id, URL: u, Err: err}
					r.log.Warn().Err(fail).Str("event", "resolution_failure").
						Str("group_id", id).Str("url", u).Msg("provider group not resolved")
				}
				return nil
			}
			results[u] = groups
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := make(model.ProviderReferenceTable, len(refs))
	for u, groups := range results {
		for _, id := range idsByURL[u] {
			table[id] = append(table[id], groups...)
		}
	}
	r.log.Debug().Int("urls", len(urls)).Int("failed", failures).Int("groups", len(table)).
		Str("source", doc.Source).Msg("remote provider references fetched")
	return table, nil
}

// fetchGroups fetches and decodes one location with per-attempt timeout and
// exponential backoff. Permanent HTTP errors are not retried.
func (r *Remote) fetchGroups(ctx context.Context, u string) ([]model.ProviderGroup, error) {
	var groups []model.ProviderGroup
	attempts := 0
	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
		rc, err := r.opener.Open(actx, u)
		if err != nil {
			return permanentUnlessTransient(err)
		}
		defer rc.Close()
		groups, err = decodeRemote(rc)
		if errors.Is(err, errNoGroups) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) || errors.Is(err, errNoGroups) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &model.TransientIOError{URL: u, Attempts: attempts, Err: err}
	}
	return groups, nil
}

func permanentUnlessTransient(err error) error {
	var se *fetch.StatusError
	if errors.As(err, &se) && !se.Transient() {
		return backoff.Permanent(fmt.Errorf("provider document: %w", err))
	}
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	return err
}

var (
	_ Resolver = (*Inline)(nil)
	_ Resolver = (*Remote)(nil)
)
