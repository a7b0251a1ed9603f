package stream

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/gyeh/mrfscan/internal/model"
)

// watchdog cancels a file's context when one of its soft budgets runs out.
// Progress is an in_network item consumed or input read from the source, so
// a header pass that skips a large in_network array still counts. The
// initial progress budget covers the time before the first item; the stall
// budget covers the time after it.
type watchdog struct {
	opts      Options
	start     time.Time
	lastItem  atomic.Int64
	lastInput atomic.Int64
	cancel    context.CancelCauseFunc
	done      chan struct{}
	interval  time.Duration
}

func startWatchdog(opts Options, cancel context.CancelCauseFunc) *watchdog {
	w := &watchdog{
		opts:     opts,
		start:    time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
		interval: checkInterval(opts),
	}
	if opts.FileBudget > 0 || opts.InitialProgressBudget > 0 || opts.StallBudget > 0 {
		go w.loop()
	}
	return w
}

func checkInterval(opts Options) time.Duration {
	shortest := time.Second
	for _, b := range []time.Duration{opts.FileBudget, opts.InitialProgressBudget, opts.StallBudget} {
		if b > 0 && b/10 < shortest {
			shortest = b / 10
		}
	}
	return max(shortest, 5*time.Millisecond)
}

// progress records that an item was consumed.
func (w *watchdog) progress() {
	w.lastItem.Store(time.Now().UnixNano())
}

// input records that bytes were read from the source.
func (w *watchdog) input() {
	w.lastInput.Store(time.Now().UnixNano())
}

// reader reports every non-empty read from r as input progress.
func (w *watchdog) reader(r io.Reader) io.Reader {
	return &progressReader{r: r, wd: w}
}

type progressReader struct {
	r  io.Reader
	wd *watchdog
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.wd.input()
	}
	return n, err
}

func (w *watchdog) stop() {
	close(w.done)
}

func (w *watchdog) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case now := <-t.C:
			if err := w.check(now); err != nil {
				w.cancel(err)
				return
			}
		}
	}
}

func (w *watchdog) check(now time.Time) *model.BudgetExceededError {
	elapsed := now.Sub(w.start)
	if b := w.opts.FileBudget; b > 0 && elapsed > b {
		return &model.BudgetExceededError{Budget: model.BudgetFile, Limit: b, Elapsed: elapsed}
	}
	item := w.lastItem.Load()
	last := max(item, w.lastInput.Load(), w.start.UnixNano())
	idle := now.Sub(time.Unix(0, last))
	if item == 0 {
		if b := w.opts.InitialProgressBudget; b > 0 && idle > b {
			return &model.BudgetExceededError{Budget: model.BudgetInitialProgress, Limit: b, Elapsed: elapsed}
		}
		return nil
	}
	if b := w.opts.StallBudget; b > 0 && idle > b {
		return &model.BudgetExceededError{Budget: model.BudgetStall, Limit: b, Elapsed: idle}
	}
	return nil
}
