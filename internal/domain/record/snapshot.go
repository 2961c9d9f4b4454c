package record

import (
	"context"
	"strings"
	"time"
)

// Snapshot is one cycle's typed read of an external feed. It is not modified after load.
type Snapshot struct {
	Source  Source
	Name    string // feed file the rows came from
	TakenAt time.Time
	Rows    []*Record

	// Issues are per-field parse problems; the offending fields were loaded as null.
	Issues []error

	// SentinelPatterns are case-insensitive fragments marking feed footer lines.
	SentinelPatterns []string
}

// IsSentinel reports whether r is a feed-provided footer line rather than data.
func (s *Snapshot) IsSentinel(r *Record) bool {
	for _, p := range s.SentinelPatterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.Contains(strings.ToLower(r.NaturalKey), p) ||
			strings.Contains(strings.ToLower(r.Jurisdiction), p) ||
			strings.Contains(strings.ToLower(r.Title()), p) {
			return true
		}
	}
	return false
}

// Loader produces the current snapshot of a source.
type Loader interface {
	Load(ctx context.Context, src Source) (*Snapshot, error)
}
