package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bill(url, state string, categories ...string) *record.Record {
	r := record.NewBill(url)
	r.Jurisdiction = state
	copy(r.Categories[:], categories)
	r.Bill.Title = "Bill " + url
	r.Bill.Summary = "summary of " + url
	return r
}

func alert(id, state string, categories ...string) *record.Record {
	r := record.NewAlert(id)
	r.Jurisdiction = state
	copy(r.Categories[:], categories)
	r.Alert.Subject = "Alert " + id
	return r
}

func newTestReconciler(store *testutil.RecordStore, loader *testutil.Loader) *Reconciler {
	log, _ := testutil.Logger()
	r := NewReconciler(store, loader, 3, log)
	r.now = func() time.Time { return time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC) }
	return r
}

func TestRunCycle_InsertsNewRow(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))
	rec := newTestReconciler(store, loader)

	res, err := rec.RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err)

	sr := res.Source(record.SourceBill)
	require.NotNil(t, sr)
	assert.Equal(t, 1, sr.Inserted)
	assert.Equal(t, 0, sr.Updated)

	stored := store.Get(record.SourceBill, "X1")
	require.NotNil(t, stored)
	assert.True(t, stored.IsNew)
	assert.Equal(t, res.StartedAt, stored.ExtractedAt)
}

func TestRunCycle_UnchangedRowIsSkipped(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	store.Seed(bill("X1", "NY", "DENTAL"))
	loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))

	res, err := newTestReconciler(store, loader).RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err)

	sr := res.Source(record.SourceBill)
	assert.Equal(t, 0, sr.Updated)
	assert.Equal(t, 1, sr.Skipped)
	assert.Empty(t, store.Updates)
}

func TestRunCycle_UpdatesOnlyChangedColumns(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	old := bill("X1", "NY", "DENTAL")
	old.ExtractedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Seed(old)

	changed := bill("X1", "NY", "DENTAL")
	changed.Bill.Summary = "revised summary"
	loader.Set(record.SourceBill, changed)

	res, err := newTestReconciler(store, loader).RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Source(record.SourceBill).Updated)

	require.Len(t, store.Updates, 1)
	assert.Equal(t, []string{"ai_summary"}, store.Updates[0].Columns)

	stored := store.Get(record.SourceBill, "X1")
	assert.Equal(t, "revised summary", stored.Bill.Summary)
	assert.Equal(t, old.Bill.Title, stored.Bill.Title)
	assert.Equal(t, old.ExtractedAt, stored.ExtractedAt, "updates keep the extraction time")
	assert.False(t, stored.IsNew)
}

func TestRunCycle_Idempotent(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	loader.Set(record.SourceBill, bill("B1", "CA", "DENTAL"), bill("B2", "TX", "VISION"))
	loader.Set(record.SourceProviderAlert, alert("10", "Texas", "VISION"))
	rec := newTestReconciler(store, loader)

	first, err := rec.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Totals().Inserted)

	second, err := rec.RunCycle(context.Background())
	require.NoError(t, err)
	totals := second.Totals()
	assert.Equal(t, 0, totals.Inserted)
	assert.Equal(t, 0, totals.Updated)
	assert.Equal(t, 3, totals.Skipped)
}

func TestRunCycle_NewFlagsReflectOnlyCurrentCycle(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	prev := bill("OLD", "NY", "DENTAL")
	prev.IsNew = true
	store.Seed(prev)
	prevAlert := alert("1", "NY", "DENTAL")
	prevAlert.IsNew = true
	store.Seed(prevAlert)

	loader.Set(record.SourceBill, bill("OLD", "NY", "DENTAL"), bill("FRESH", "NY", "DENTAL"))

	res, err := newTestReconciler(store, loader).RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.FlagsReset, "both collections are reset")
	assert.Equal(t, []string{"FRESH"}, store.NewKeys(record.SourceBill))
	assert.Empty(t, store.NewKeys(record.SourceProviderAlert))
	assert.Equal(t, 1, store.Resets)
}

func TestRunCycle_PurgesStoredDuplicatesKeepingLatest(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	older := bill("D1", "NY", "DENTAL")
	older.ExtractedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older.Bill.Status = "Introduced"
	newer := bill("D1", "NY", "DENTAL")
	newer.ExtractedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	newer.Bill.Status = "Passed"
	store.Seed(older, newer)

	incoming := bill("D1", "NY", "DENTAL")
	incoming.Bill.Status = "Passed"
	loader.Set(record.SourceBill, incoming)

	res, err := newTestReconciler(store, loader).RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err)

	sr := res.Source(record.SourceBill)
	assert.Equal(t, int64(1), sr.Purged)
	assert.Equal(t, 1, sr.Skipped)
	rows := store.Rows(record.SourceBill)
	require.Len(t, rows, 1)
	assert.Equal(t, "Passed", rows[0].Bill.Status)
}

func TestRunCycle_SanitizesSnapshot(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	first := bill("K1", "NY", "DENTAL")
	first.Bill.Status = "first"
	last := bill("K1", "NY", "DENTAL")
	last.Bill.Status = "last"
	snap := loader.Set(record.SourceBill,
		first,
		bill("", "NY", "DENTAL"),
		last,
		record.NewBill("** Data provided by www.BillTrack50.com **"),
	)
	snap.SentinelPatterns = []string{"** Data provided by www.BillTrack50.com **"}

	res, err := newTestReconciler(store, loader).RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err)

	sr := res.Source(record.SourceBill)
	assert.Equal(t, 4, sr.SnapshotRows)
	assert.Equal(t, 1, sr.Inserted)
	assert.Equal(t, 1, sr.DroppedBlankKey)
	assert.Equal(t, 1, sr.Sentinels)
	assert.Equal(t, 1, sr.SnapshotDuplicates)
	assert.Equal(t, "last", store.Get(record.SourceBill, "K1").Bill.Status)
}

func TestRunCycle_EmptySnapshotNeverDeletes(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	store.Seed(bill("KEEP", "NY", "DENTAL"))
	loader.Set(record.SourceBill)

	res, err := newTestReconciler(store, loader).RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Totals().Inserted)
	assert.Len(t, store.Rows(record.SourceBill), 1)
}

func TestRunCycle_RowWriteFailureIsCounted(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	store.InsertErr["BAD"] = errors.New("value too long")
	loader.Set(record.SourceBill, bill("GOOD", "NY", "DENTAL"), bill("BAD", "NY", "DENTAL"))

	res, err := newTestReconciler(store, loader).RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err, "row failures are not hard failures")

	sr := res.Source(record.SourceBill)
	assert.Equal(t, 1, sr.Inserted)
	assert.Equal(t, 1, sr.Failed)
	assert.False(t, res.HardFailure())
}

func TestRunCycle_SourceUnavailableStopsCycle(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	loader.Err[record.SourceBill] = errors.New("file not found")
	loader.Set(record.SourceProviderAlert, alert("1", "NY", "DENTAL"))

	res, err := newTestReconciler(store, loader).RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	var sue *SourceUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "load", sue.Stage)

	assert.True(t, res.HardFailure())
	assert.Len(t, res.Sources, 1, "alerts are not processed after bills fail")
	assert.Equal(t, 0, loader.Loads[record.SourceProviderAlert])
	assert.Empty(t, store.Rows(record.SourceProviderAlert))
}

func TestRunCycle_ResetFailureWritesNothing(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	store.ResetErr = errors.New("connection refused")
	loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))

	res, err := newTestReconciler(store, loader).RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Empty(t, res.Sources)
	assert.Equal(t, 0, loader.Loads[record.SourceBill])
	assert.Empty(t, store.Inserts)
}

func TestRunCycle_ListFailureLeavesStoreUntouched(t *testing.T) {
	store, loader := testutil.NewRecordStore(), testutil.NewLoader()
	store.ListErr = errors.New("timeout")
	loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))

	_, err := newTestReconciler(store, loader).RunCycle(context.Background(), record.SourceBill)
	var sue *SourceUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "list", sue.Stage)
	assert.Empty(t, store.Inserts)
}
