// Package stream reads rate files with bounded memory and turns them into
// canonical rate records.
package stream

import "time"

// Options tunes path choice, memory sampling and the soft per-file budgets.
// Zero budgets are disabled.
type Options struct {
	ThresholdBytes        int64
	MemoryThresholdBytes  uint64
	SampleEvery           int
	FileBudget            time.Duration
	InitialProgressBudget time.Duration
	StallBudget           time.Duration
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		ThresholdBytes:        10 << 20,
		MemoryThresholdBytes:  1 << 30,
		SampleEvery:           1000,
		FileBudget:            10 * time.Minute,
		InitialProgressBudget: 60 * time.Second,
		StallBudget:           180 * time.Second,
	}
}
