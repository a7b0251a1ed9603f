package main

import (
	"fmt"
	"strings"

	"github.com/gyeh/mrfscan/internal/fetch"
	"github.com/gyeh/mrfscan/internal/index"
	"github.com/gyeh/mrfscan/internal/normalize"
	"github.com/gyeh/mrfscan/internal/parser"
	"github.com/gyeh/mrfscan/internal/payer"
	"github.com/gyeh/mrfscan/internal/resolver"
	"github.com/gyeh/mrfscan/internal/stream"
)

func newClient() *fetch.Client {
	opts := fetch.DefaultOptions()
	opts.Timeout = cfg.Fetch.Timeout
	opts.MaxAttempts = cfg.Fetch.MaxAttempts
	opts.UserAgent = cfg.Fetch.UserAgent
	return fetch.NewClient(nil, opts, log)
}

func newIndexReader() *index.Reader {
	return index.NewReader(newClient(), log)
}

// newRegistry returns the built-in handlers plus each configured payer name
// bound to its handler.
func newRegistry() (*payer.Registry, error) {
	entries := payer.BuiltinEntries()
	for _, p := range cfg.Payers {
		if p.Handler == "" || strings.EqualFold(p.Handler, p.Name) {
			continue
		}
		var ok bool
		if entries, ok = payer.Alias(entries, p.Name, p.Handler); !ok {
			return nil, fmt.Errorf("payer %q: unknown handler %q", p.Name, p.Handler)
		}
	}
	return payer.NewRegistry(log, entries...), nil
}

// newEngine wires fetch, resolvers, the whitelist and the payer registry
// into a streaming engine.
func newEngine(codes []string) (*stream.Engine, error) {
	normalizer, err := normalize.New(codes, cfg.CodeTypes)
	if err != nil {
		return nil, err
	}
	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}

	// The remote resolver retries on its own; its opener makes one attempt.
	refOpts := fetch.DefaultOptions()
	refOpts.Timeout = cfg.Resolver.Timeout
	refOpts.MaxAttempts = 1
	refOpts.UserAgent = cfg.Fetch.UserAgent
	remoteOpts := resolver.DefaultRemoteOptions()
	remoteOpts.Concurrency = cfg.Resolver.Concurrency
	remoteOpts.Timeout = cfg.Resolver.Timeout
	remoteOpts.MaxAttempts = cfg.Resolver.MaxAttempts
	remote := resolver.NewRemote(fetch.NewClient(nil, refOpts, log), remoteOpts, log)

	factory := parser.NewFactory(registry, remote, normalizer, log)
	return stream.NewEngine(newClient(), factory, streamOptions(), log), nil
}

func streamOptions() stream.Options {
	s := cfg.Stream
	return stream.Options{
		ThresholdBytes:        s.ThresholdBytes,
		MemoryThresholdBytes:  s.MemoryThresholdBytes,
		SampleEvery:           s.SampleEvery,
		FileBudget:            s.FileBudget,
		InitialProgressBudget: s.InitialProgressBudget,
		StallBudget:           s.StallBudget,
	}
}
