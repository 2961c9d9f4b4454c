package cycle

import (
	"context"
	"fmt"
	"time"
)

var ErrRunNotFound = fmt.Errorf("cycle run not found")

// Run is a persisted cycle summary. Corresponds to the 'reconciliation_runs' table.
type Run struct {
	ID         string
	Kind       Kind
	Sources    []string // sources reached, in order
	StartedAt  time.Time
	FinishedAt time.Time
	FlagsReset int64
	Totals     Totals
	Error      string // empty when the cycle succeeded

	// DispatchedAt is set once digests for this cycle's new records were sent.
	DispatchedAt *time.Time
}

// RunRepository stores cycle summaries.
type RunRepository interface {
	Save(ctx context.Context, run Run) error
	GetByID(ctx context.Context, id string) (*Run, error) // ErrRunNotFound when absent
	ListRecent(ctx context.Context, limit int) ([]Run, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error // ErrRunNotFound when absent
}
