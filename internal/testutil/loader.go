package testutil

import (
	"context"
	"sync"
	"time"

	"medirate_alerts/internal/domain/record"
)

// Loader serves fixed snapshots per source and counts loads.
type Loader struct {
	mu        sync.Mutex
	snapshots map[record.Source]*record.Snapshot

	Err   map[record.Source]error
	Loads map[record.Source]int
}

var _ record.Loader = (*Loader)(nil)

func NewLoader() *Loader {
	return &Loader{
		snapshots: make(map[record.Source]*record.Snapshot),
		Err:       make(map[record.Source]error),
		Loads:     make(map[record.Source]int),
	}
}

// Set replaces the snapshot of src with rows.
func (l *Loader) Set(src record.Source, rows ...*record.Record) *record.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := &record.Snapshot{Source: src, Name: string(src) + ".csv", TakenAt: time.Now().UTC(), Rows: rows}
	l.snapshots[src] = snap
	return snap
}

func (l *Loader) Load(ctx context.Context, src record.Source) (*record.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Loads[src]++
	if err := l.Err[src]; err != nil {
		return nil, err
	}
	snap, ok := l.snapshots[src]
	if !ok {
		return &record.Snapshot{Source: src, TakenAt: time.Now().UTC()}, nil
	}
	cp := *snap
	cp.Rows = cloneAll(snap.Rows)
	return &cp, nil
}
