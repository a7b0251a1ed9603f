// Package sink writes canonical rate records to parquet batches, Postgres
// and object storage.
package sink

import (
	"context"
	"fmt"

	"github.com/gyeh/mrfscan/internal/model"
)

// Sink consumes the records of one file at a time.
type Sink interface {
	Name() string
	// Consume reads records until the channel is closed and returns how many
	// it accepted. It must return promptly once ctx is done.
	Consume(ctx context.Context, payer string, file model.FileDescriptor, records <-chan *model.CanonicalRateRecord) (int64, error)
	// Close flushes anything buffered across files.
	Close(ctx context.Context) error
}

// Error is a failure inside a sink, as opposed to a failure reading the file.
type Error struct {
	Sink string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Dedup remembers record hashes seen during a run. Once it holds max
// entries it stops remembering and lets everything through. It is not safe
// for concurrent use.
type Dedup struct {
	seen map[[32]byte]struct{}
	max  int
	full bool
}

// DefaultDedupEntries bounds the set at roughly 500 MiB of hashes.
const DefaultDedupEntries = 10_000_000

// NewDedup creates a Dedup holding at most max hashes. A non-positive max
// disables it.
func NewDedup(max int) *Dedup {
	if max <= 0 {
		return nil
	}
	return &Dedup{seen: make(map[[32]byte]struct{}), max: max}
}

// Seen reports whether hash was already recorded, recording it otherwise.
// A nil Dedup and a hash of the wrong size never match.
func (d *Dedup) Seen(hash []byte) bool {
	if d == nil || len(hash) != 32 {
		return false
	}
	k := [32]byte(hash)
	if _, ok := d.seen[k]; ok {
		return true
	}
	if len(d.seen) >= d.max {
		d.full = true
		return false
	}
	d.seen[k] = struct{}{}
	return false
}

// Full reports whether the set reached its bound.
func (d *Dedup) Full() bool { return d != nil && d.full }

// Len returns the number of hashes held.
func (d *Dedup) Len() int {
	if d == nil {
		return 0
	}
	return len(d.seen)
}
