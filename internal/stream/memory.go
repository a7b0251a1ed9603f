package stream

import (
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/model"
)

// sampler checks heap usage every n records and asks the runtime to give
// memory back when it crosses the threshold.
type sampler struct {
	every     int
	threshold uint64
	count     int
	log       zerolog.Logger
}

func newSampler(opts Options, log zerolog.Logger) *sampler {
	every := opts.SampleEvery
	if every <= 0 {
		every = DefaultOptions().SampleEvery
	}
	return &sampler{every: every, threshold: opts.MemoryThresholdBytes, log: log}
}

func (s *sampler) observe(stats *model.FileStats) {
	if s.count++; s.count%s.every != 0 {
		return
	}
	s.sample(stats)
}

func (s *sampler) sample(stats *model.FileStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.PeakHeapBytes = max(stats.PeakHeapBytes, m.HeapAlloc)
	stats.PeakRSSBytes = max(stats.PeakRSSBytes, peakRSS())
	if s.threshold == 0 || m.HeapAlloc < s.threshold {
		return
	}
	s.log.Warn().Str("event", "memory_pressure").Uint64("heap_bytes", m.HeapAlloc).
		Uint64("threshold_bytes", s.threshold).Int("records", s.count).Msg("reclaiming memory")
	runtime.GC()
	debug.FreeOSMemory()
	stats.MemoryReclaims++
}
