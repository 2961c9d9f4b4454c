// Package cycle holds the outcome of one reconciliation cycle.
package cycle

import (
	"fmt"
	"strings"
	"time"

	"medirate_alerts/internal/domain/record"

	"github.com/google/uuid"
)

// Kind says which sources a cycle covered.
type Kind string

const (
	KindFull          Kind = "FULL"
	KindBill          Kind = "BILL"
	KindProviderAlert Kind = "PROVIDER_ALERT"
)

// KindFor maps the source list of a cycle to its kind.
func KindFor(sources []record.Source) Kind {
	if len(sources) == 1 {
		if sources[0] == record.SourceBill {
			return KindBill
		}
		return KindProviderAlert
	}
	return KindFull
}

// SourceResult counts what happened to one feed during a cycle.
type SourceResult struct {
	Source       record.Source
	SnapshotRows int

	Inserted int
	Updated  int
	Skipped  int
	Failed   int

	DroppedBlankKey    int
	Sentinels          int
	SnapshotDuplicates int
	ParseIssues        int
	Purged             int64

	// Err is set when the feed or store could not be reached; nothing was written.
	Err error
}

// Totals aggregates the row counters of every source.
type Totals struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
}

// Result is the explicit record of one cycle, returned to the caller and persisted.
type Result struct {
	ID         uuid.UUID
	Kind       Kind
	StartedAt  time.Time
	FinishedAt time.Time
	FlagsReset int64
	Sources    []*SourceResult

	// Err is set when the cycle could not start (flag reset failed).
	Err error
}

// NewResult starts a result for the given sources at startedAt.
func NewResult(sources []record.Source, startedAt time.Time) *Result {
	return &Result{
		ID:        uuid.New(),
		Kind:      KindFor(sources),
		StartedAt: startedAt,
	}
}

// Source returns the per-source result, nil when the source was not reached.
func (r *Result) Source(src record.Source) *SourceResult {
	for _, s := range r.Sources {
		if s.Source == src {
			return s
		}
	}
	return nil
}

// Totals sums row counters across sources.
func (r *Result) Totals() Totals {
	var t Totals
	for _, s := range r.Sources {
		t.Inserted += s.Inserted
		t.Updated += s.Updated
		t.Skipped += s.Skipped
		t.Failed += s.Failed
	}
	return t
}

// HardFailure reports whether a feed or the store could not be reached.
func (r *Result) HardFailure() bool {
	return r.FirstError() != nil
}

// FirstError returns the cycle error or the first source error.
func (r *Result) FirstError() error {
	if r.Err != nil {
		return r.Err
	}
	for _, s := range r.Sources {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Summary renders the counts for operators.
func (r *Result) Summary() string {
	var b strings.Builder
	status := "completed"
	if r.HardFailure() {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "Cycle %s (%s) %s in %s\n", r.ID.String()[:8], r.Kind, status, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", r.Err)
	}
	for _, s := range r.Sources {
		fmt.Fprintf(&b, "%s: inserted=%d updated=%d skipped=%d failed=%d purged=%d",
			s.Source, s.Inserted, s.Updated, s.Skipped, s.Failed, s.Purged)
		if s.DroppedBlankKey > 0 || s.Sentinels > 0 || s.SnapshotDuplicates > 0 || s.ParseIssues > 0 {
			fmt.Fprintf(&b, " (blank_keys=%d sentinels=%d duplicate_rows=%d parse_issues=%d)",
				s.DroppedBlankKey, s.Sentinels, s.SnapshotDuplicates, s.ParseIssues)
		}
		if s.Err != nil {
			fmt.Fprintf(&b, " error: %v", s.Err)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Run flattens the result for storage.
func (r *Result) Run() Run {
	run := Run{
		ID:         r.ID.String(),
		Kind:       r.Kind,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		FlagsReset: r.FlagsReset,
		Totals:     r.Totals(),
	}
	for _, s := range r.Sources {
		run.Sources = append(run.Sources, string(s.Source))
	}
	if err := r.FirstError(); err != nil {
		run.Error = err.Error()
	}
	return run
}
