package app

import (
	"context"
	"errors"
	"testing"

	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeeds map[record.Source]error

func (f stubFeeds) Check(ctx context.Context, src record.Source) (string, error) {
	if err := f[src]; err != nil {
		return "", err
	}
	return string(src) + ".csv", nil
}

type recordingReporter struct {
	cycles     []*cycle.Result
	dispatches []*notification.Report
}

func (r *recordingReporter) ReportCycle(ctx context.Context, res *cycle.Result) error {
	r.cycles = append(r.cycles, res)
	return nil
}

func (r *recordingReporter) ReportDispatch(ctx context.Context, report *notification.Report) error {
	r.dispatches = append(r.dispatches, report)
	return nil
}

type serviceFixture struct {
	records  *testutil.RecordStore
	prefs    *testutil.PreferenceStore
	runs     *testutil.RunStore
	loader   *testutil.Loader
	gateway  *testutil.Gateway
	reporter *recordingReporter
	feeds    stubFeeds
	service  *CycleService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	log, _ := testutil.Logger()
	digests, err := NewDigestBuilder()
	require.NoError(t, err)

	f := &serviceFixture{
		records:  testutil.NewRecordStore(),
		prefs:    testutil.NewPreferenceStore(),
		runs:     testutil.NewRunStore(),
		loader:   testutil.NewLoader(),
		gateway:  testutil.NewGateway(),
		reporter: &recordingReporter{},
		feeds:    stubFeeds{},
	}
	notifier := NewNotificationService(f.records, f.prefs, NewMatcher(log), digests, f.gateway, 2, log)
	f.service = NewCycleService(newTestReconciler(f.records, f.loader), notifier, f.records, f.runs, f.feeds, log)
	f.service.SetReporter(f.reporter)
	return f
}

func TestCycleService_FullCyclePersistsAndReports(t *testing.T) {
	f := newServiceFixture(t)
	f.loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))
	f.loader.Set(record.SourceProviderAlert, alert("44", "CA", "VISION"))

	res, err := f.service.RunFullCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cycle.KindFull, res.Kind)
	assert.Equal(t, 2, res.Totals().Inserted)

	runs, err := f.service.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.ID.String(), runs[0].ID)
	assert.Equal(t, 2, runs[0].Totals.Inserted)
	require.Len(t, f.reporter.cycles, 1)

	recs, err := f.service.FetchNewRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, record.SourceBill, recs[0].Source, "bills come first")
}

func TestCycleService_SingleSourceCycles(t *testing.T) {
	f := newServiceFixture(t)
	f.loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))
	f.loader.Set(record.SourceProviderAlert, alert("44", "CA", "VISION"))

	res, err := f.service.RunBillReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cycle.KindBill, res.Kind)
	assert.Equal(t, 0, f.loader.Loads[record.SourceProviderAlert])

	res, err = f.service.RunAlertReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cycle.KindProviderAlert, res.Kind)

	// Each cycle resets both collections, so only the alert is still new.
	assert.Empty(t, f.records.NewKeys(record.SourceBill))
	assert.Equal(t, []string{"44"}, f.records.NewKeys(record.SourceProviderAlert))
}

func TestCycleService_FailedCycleIsStillRecorded(t *testing.T) {
	f := newServiceFixture(t)
	f.loader.Err[record.SourceBill] = errors.New("no export for the last 12 months")

	res, err := f.service.RunFullCycle(context.Background())
	require.Error(t, err)
	assert.True(t, res.HardFailure())

	runs, err := f.service.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "no export")
}

func TestCycleService_DispatchReportsDeliveries(t *testing.T) {
	f := newServiceFixture(t)
	f.loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))
	f.prefs.Add("ny@example.com", []string{"New York"}, []string{"dental"})
	_, err := f.service.RunFullCycle(context.Background())
	require.NoError(t, err)

	sent, err := f.service.DispatchNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, f.reporter.dispatches, 1)
}

func TestCycleService_PendingDispatch(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	run, err := f.service.PendingDispatch(ctx)
	require.NoError(t, err)
	assert.Nil(t, run, "no cycle has run")

	f.loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))
	f.prefs.Add("ny@example.com", []string{"New York"}, []string{"dental"})
	res, err := f.service.RunFullCycle(ctx)
	require.NoError(t, err)

	run, err = f.service.PendingDispatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, res.ID.String(), run.ID)

	_, err = f.service.DispatchNotifications(ctx)
	require.NoError(t, err)

	run, err = f.service.PendingDispatch(ctx)
	require.NoError(t, err)
	assert.Nil(t, run, "latest cycle was dispatched")
	runs, err := f.service.RecentRuns(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, runs[0].DispatchedAt)

	_, err = f.service.RunFullCycle(ctx)
	require.NoError(t, err)
	run, err = f.service.PendingDispatch(ctx)
	require.NoError(t, err)
	assert.NotNil(t, run, "a new cycle needs its own dispatch")
}

func TestCycleService_RejectsOverlappingRuns(t *testing.T) {
	f := newServiceFixture(t)
	f.service.mu.Lock()
	defer f.service.mu.Unlock()

	_, err := f.service.RunFullCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	_, err = f.service.DispatchNotifications(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
}

func TestCycleService_CheckConnections(t *testing.T) {
	f := newServiceFixture(t)
	status := f.service.CheckConnections(context.Background())
	assert.True(t, status.OK())
	require.Len(t, status.Feeds, 2)
	assert.Equal(t, "bill.csv", status.Feeds[0].File)

	f.records.PingErr = errors.New("dial tcp: connection refused")
	f.feeds[record.SourceProviderAlert] = errors.New("missing")
	status = f.service.CheckConnections(context.Background())
	assert.False(t, status.OK())
	assert.ErrorIs(t, status.StoreErr, ErrSourceUnavailable)
	assert.Error(t, status.Feeds[1].Err)
}

func TestCycleService_ListUncategorized(t *testing.T) {
	f := newServiceFixture(t)
	f.records.Seed(bill("B1", "NY"), bill("B2", "NY", "DENTAL"))

	recs, err := f.service.ListUncategorized(context.Background(), record.SourceBill)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "B1", recs[0].NaturalKey)
}
