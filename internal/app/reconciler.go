package app

import (
	"context"
	"sync"
	"time"

	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/record"

	"github.com/sirupsen/logrus"
)

const (
	opInsert = "insert"
	opUpdate = "update"
)

// Reconciler merges feed snapshots into the record store.
type Reconciler struct {
	records record.Repository
	loader  record.Loader
	workers int
	log     *logrus.Entry
	now     func() time.Time
}

func NewReconciler(records record.Repository, loader record.Loader, workers int, log *logrus.Entry) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{
		records: records,
		loader:  loader,
		workers: workers,
		log:     log,
		now:     time.Now,
	}
}

// writeOp is one row mutation; each is its own commit unit.
type writeOp struct {
	op   string
	row  *record.Record
	cols []record.Column
}

// RunCycle clears the new flags of both collections, then reconciles each source in
// order. A source that cannot be loaded or read stops the cycle; row-level failures
// are counted and skipped. The result is always returned; the error is set only for a
// hard failure.
func (r *Reconciler) RunCycle(ctx context.Context, sources ...record.Source) (*cycle.Result, error) {
	if len(sources) == 0 {
		sources = record.Sources()
	}

	startedAt := r.now().UTC()
	res := cycle.NewResult(sources, startedAt)
	log := r.log.WithFields(logrus.Fields{"cycle_id": res.ID.String(), "kind": res.Kind})

	defer func() {
		res.FinishedAt = r.now().UTC()
	}()

	if err := r.beginCycle(ctx, res); err != nil {
		log.WithError(err).Error("Cycle aborted: could not reset new flags")
		return res, err
	}
	log.WithField("flags_reset", res.FlagsReset).Info("New flags cleared")

	for _, src := range sources {
		sr := r.reconcileSource(ctx, src, startedAt, log.WithField("source", src))
		res.Sources = append(res.Sources, sr)
		if sr.Err != nil {
			log.WithError(sr.Err).Error("Cycle aborted: source unavailable")
			return res, sr.Err
		}
	}

	t := res.Totals()
	log.WithFields(logrus.Fields{
		"inserted": t.Inserted,
		"updated":  t.Updated,
		"skipped":  t.Skipped,
		"failed":   t.Failed,
	}).Info("Cycle completed")
	return res, nil
}

// beginCycle clears is_new on every stored row of both collections. It runs once at
// the top of RunCycle and nowhere else.
func (r *Reconciler) beginCycle(ctx context.Context, res *cycle.Result) error {
	n, err := r.records.ResetNewFlags(ctx)
	if err != nil {
		res.Err = &SourceUnavailableError{Stage: "reset", Err: err}
		return res.Err
	}
	res.FlagsReset = n
	return nil
}

func (r *Reconciler) reconcileSource(ctx context.Context, src record.Source, startedAt time.Time, log *logrus.Entry) *cycle.SourceResult {
	sr := &cycle.SourceResult{Source: src}

	snap, err := r.loader.Load(ctx, src)
	if err != nil {
		sr.Err = &SourceUnavailableError{Source: src, Stage: "load", Err: err}
		return sr
	}
	sr.SnapshotRows = len(snap.Rows)
	sr.ParseIssues = len(snap.Issues)
	for _, issue := range snap.Issues {
		log.WithError(issue).Warn("Field could not be parsed, stored as null")
	}
	log.WithFields(logrus.Fields{"snapshot": snap.Name, "rows": sr.SnapshotRows}).Info("Snapshot loaded")

	sr.Purged, err = r.records.PurgeDuplicates(ctx, src)
	if err != nil {
		sr.Err = &SourceUnavailableError{Source: src, Stage: "purge", Err: err}
		return sr
	}
	if sr.Purged > 0 {
		log.WithField("purged", sr.Purged).Info("Duplicate stored rows purged")
	}

	stored, err := r.records.List(ctx, src)
	if err != nil {
		sr.Err = &SourceUnavailableError{Source: src, Stage: "list", Err: err}
		return sr
	}

	ops := classify(sanitize(snap, sr, log), stored, startedAt, sr)
	r.apply(ctx, ops, sr, log)

	log.WithFields(logrus.Fields{
		"inserted": sr.Inserted,
		"updated":  sr.Updated,
		"skipped":  sr.Skipped,
		"failed":   sr.Failed,
	}).Info("Source reconciled")
	return sr
}

// sanitize drops footer lines and keyless rows and collapses repeated keys within the
// snapshot; the last occurrence of a key wins and keeps the first occurrence's position.
func sanitize(snap *record.Snapshot, sr *cycle.SourceResult, log *logrus.Entry) []*record.Record {
	out := make([]*record.Record, 0, len(snap.Rows))
	seen := make(map[string]int, len(snap.Rows))
	for i, row := range snap.Rows {
		if snap.IsSentinel(row) {
			sr.Sentinels++
			continue
		}
		if !row.HasKey() {
			sr.DroppedBlankKey++
			log.WithField("row", i+1).Warn("Row without natural key dropped")
			continue
		}
		if idx, ok := seen[row.NaturalKey]; ok {
			sr.SnapshotDuplicates++
			out[idx] = row
			continue
		}
		seen[row.NaturalKey] = len(out)
		out = append(out, row)
	}
	return out
}

// classify turns sanitized rows into writes. Rows whose compared columns all match the
// stored copy are counted as skipped and produce no write.
func classify(rows, stored []*record.Record, startedAt time.Time, sr *cycle.SourceResult) []writeOp {
	byKey := make(map[string]*record.Record, len(stored))
	for _, s := range stored {
		byKey[s.NaturalKey] = s
	}

	ops := make([]writeOp, 0, len(rows))
	for _, row := range rows {
		existing, ok := byKey[row.NaturalKey]
		if !ok {
			ins := row.Clone()
			ins.IsNew = true
			ins.ExtractedAt = startedAt
			ops = append(ops, writeOp{op: opInsert, row: ins})
			continue
		}
		changed := record.Diff(row, existing)
		if len(changed) == 0 {
			sr.Skipped++
			continue
		}
		ops = append(ops, writeOp{op: opUpdate, row: row, cols: changed})
	}
	return ops
}

func (r *Reconciler) apply(ctx context.Context, ops []writeOp, sr *cycle.SourceResult, log *logrus.Entry) {
	var mu sync.Mutex
	runPool(ctx, r.workers, ops, func(ctx context.Context, workerID int, w writeOp) {
		var err error
		switch w.op {
		case opInsert:
			err = r.records.Insert(ctx, w.row)
		case opUpdate:
			err = r.records.UpdateColumns(ctx, w.row, w.cols)
		}

		mu.Lock()
		defer mu.Unlock()
		entry := log.WithFields(logrus.Fields{"natural_key": w.row.NaturalKey, "worker_id": workerID})
		if err != nil {
			sr.Failed++
			entry.WithError(&RowWriteError{Source: sr.Source, NaturalKey: w.row.NaturalKey, Op: w.op, Err: err}).Error("Row write failed, skipping")
			return
		}
		if w.op == opInsert {
			sr.Inserted++
			entry.Debug("Row inserted")
			return
		}
		sr.Updated++
		entry.WithField("columns", record.ColumnNames(w.cols)).Debug("Row updated")
	})
}
