package model

import "time"

// FileStatus is the outcome of processing one file.
type FileStatus string

const (
	FileOK             FileStatus = "ok"
	FileSkipped        FileStatus = "skipped"
	FileFailed         FileStatus = "failed"
	FileBudgetExceeded FileStatus = "budget_exceeded"
)

// Skip and failure reasons recorded on a FileOutcome.
const (
	ReasonSchemaUnknown   = "schema_unknown"
	ReasonStructureError  = "structure_error"
	ReasonFetchFailed     = "fetch_failed"
	ReasonBudgetExceeded  = "budget_exceeded"
	ReasonUnsupportedKind = "unsupported_kind"
	ReasonSinkFailed      = "sink_failed"
	ReasonCanceled        = "canceled"
)

// FileStats are the counters the engine keeps for one file.
type FileStats struct {
	Path              string // "stream" or "whole"
	Schema            SchemaKind
	ProviderGroups    int
	ItemsSeen         int64
	ItemsSkipped      int64
	ItemsFiltered     int64
	PricesSkipped     int64
	RecordsEmitted    int64
	RecordsFiltered   int64
	MemoryReclaims    int
	PeakHeapBytes     uint64
	PeakRSSBytes      uint64
	FirstRecordAfter  time.Duration
	ProviderRefsAfter time.Duration
}

// FileOutcome is the per-file result handed back to the caller.
type FileOutcome struct {
	File           FileDescriptor
	Status         FileStatus
	Reason         string
	Err            error
	Stats          FileStats
	RecordsWritten int64
	Duration       time.Duration
}

// RunSummary captures metrics from a single run across payers and files.
type RunSummary struct {
	RunID          string
	Payers         int
	PayersFailed   int // payers whose index could not be listed
	FilesListed    int
	FilesOK        int
	FilesSkipped   int
	FilesFailed    int
	RecordsEmitted int64
	RecordsWritten int64
	Outcomes       []FileOutcome
	DurationTotal  time.Duration
}

// Add folds one outcome into the summary.
func (s *RunSummary) Add(o FileOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case FileOK:
		s.FilesOK++
	case FileSkipped:
		s.FilesSkipped++
	default:
		s.FilesFailed++
	}
	s.RecordsEmitted += o.Stats.RecordsEmitted
	s.RecordsWritten += o.RecordsWritten
}

// PartialFailure reports whether at least one file failed while others did not.
func (s *RunSummary) PartialFailure() bool {
	return s.FilesFailed > 0 && (s.FilesOK > 0 || s.FilesSkipped > 0)
}
