package ingest

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/sink"
)

const stageBuffer = 1024

// StageResult holds metrics from staging one file.
type StageResult struct {
	RecordsRead      int64
	RecordsDuplicate int64
	RecordsDelivered int64
	RecordsWritten   map[string]int64 // per sink
	Duration         time.Duration
}

// Stage drains records into every sink. A producer goroutine reads the
// record sequence and pushes each record onto one bounded channel per sink,
// so a slow sink slows the scan instead of buffering the file in memory.
//
// The first error the sequence yields ends the file and is returned as
// scanErr. A sink failure is returned as sinkErr (a *sink.Error) and stops
// the sequence early.
func Stage(ctx context.Context, sinks []sink.Sink, dedup *sink.Dedup, log zerolog.Logger, payer string, fd model.FileDescriptor, records iter.Seq2[model.CanonicalRateRecord, error]) (res *StageResult, scanErr, sinkErr error) {
	start := time.Now()
	res = &StageResult{RecordsWritten: make(map[string]int64, len(sinks))}

	g, gctx := errgroup.WithContext(ctx)
	chans := make([]chan *model.CanonicalRateRecord, len(sinks))
	written := make([]int64, len(sinks))
	for i, s := range sinks {
		ch := make(chan *model.CanonicalRateRecord, stageBuffer)
		chans[i] = ch
		g.Go(func() error {
			n, err := s.Consume(gctx, payer, fd, ch)
			written[i] = n
			if err != nil {
				return &sink.Error{Sink: s.Name(), Err: err}
			}
			return nil
		})
	}

	// Producer: record sequence → dedup → every sink channel.
	g.Go(func() error {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()
		for rec, err := range records {
			if err != nil {
				scanErr = err
				return nil
			}
			res.RecordsRead++
			if dedup.Seen(rec.RecordHash) {
				res.RecordsDuplicate++
				continue
			}
			r := &rec
			for _, ch := range chans {
				select {
				case ch <- r:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			res.RecordsDelivered++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		var se *sink.Error
		if errors.As(err, &se) {
			sinkErr = err
		} else if scanErr == nil {
			scanErr = err
		}
	}
	for i, s := range sinks {
		res.RecordsWritten[s.Name()] = written[i]
	}

	res.Duration = time.Since(start)
	log.Debug().
		Str("url", fd.URL).
		Int64("records_read", res.RecordsRead).
		Int64("records_duplicate", res.RecordsDuplicate).
		Int64("records_delivered", res.RecordsDelivered).
		Str("duration", res.Duration.String()).
		Msg("staging complete")
	return res, scanErr, sinkErr
}
