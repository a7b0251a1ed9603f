package model

import (
	"fmt"
	"strings"
	"time"
)

// StructureError means an index or rate document matches no known shape. It
// is fatal for that document only.
type StructureError struct {
	Source        string
	AvailableKeys []string
	Msg           string
	Err           error
}

func (e *StructureError) Error() string {
	var b strings.Builder
	b.WriteString("structure error")
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.AvailableKeys != nil {
		fmt.Fprintf(&b, " (available keys: %s)", strings.Join(e.AvailableKeys, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StructureError) Unwrap() error { return e.Err }

// SchemaUnknownError means provider_references could not be classified.
type SchemaUnknownError struct {
	Source         string
	FirstEntryKeys []string
}

func (e *SchemaUnknownError) Error() string {
	if len(e.FirstEntryKeys) == 0 {
		return fmt.Sprintf("unknown provider reference schema in %s: no provider_references", e.Source)
	}
	return fmt.Sprintf("unknown provider reference schema in %s: first entry keys %s",
		e.Source, strings.Join(e.FirstEntryKeys, ", "))
}

// ResolutionFailure is a single provider group that could not be fetched.
// It is logged and the group is left out of the table.
type ResolutionFailure struct {
	GroupID string
	URL     string
	Err     error
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("resolve provider group %s from %s: %v", e.GroupID, e.URL, e.Err)
}

func (e *ResolutionFailure) Unwrap() error { return e.Err }

// ItemParseError is a malformed in_network item or price entry. The item is
// skipped and the document continues.
type ItemParseError struct {
	Index       int
	BillingCode string
	Err         error
}

func (e *ItemParseError) Error() string {
	if e.BillingCode != "" {
		return fmt.Sprintf("item %d (billing code %s): %v", e.Index, e.BillingCode, e.Err)
	}
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemParseError) Unwrap() error { return e.Err }

// TransientIOError is a network failure that outlived its retries.
type TransientIOError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// Budget names used by BudgetExceededError.
const (
	BudgetFile            = "file"
	BudgetInitialProgress = "initial_progress"
	BudgetStall           = "stall"
)

// BudgetExceededError soft-aborts the current file. Records already emitted
// stay valid.
type BudgetExceededError struct {
	Budget  string
	Limit   time.Duration
	Elapsed time.Duration
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget of %s exceeded after %s", e.Budget, e.Limit, e.Elapsed.Round(time.Millisecond))
}
