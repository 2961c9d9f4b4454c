package app

import (
	"context"
	"errors"
	"testing"

	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifierFixture struct {
	records *testutil.RecordStore
	prefs   *testutil.PreferenceStore
	gateway *testutil.Gateway
	service *NotificationService
}

func newNotifierFixture(t *testing.T) *notifierFixture {
	t.Helper()
	log, _ := testutil.Logger()
	digests, err := NewDigestBuilder()
	require.NoError(t, err)

	f := &notifierFixture{
		records: testutil.NewRecordStore(),
		prefs:   testutil.NewPreferenceStore(),
		gateway: testutil.NewGateway(),
	}
	f.service = NewNotificationService(f.records, f.prefs, NewMatcher(log), digests, f.gateway, 2, log)
	return f
}

func flaggedNew(r *record.Record) *record.Record {
	r.IsNew = true
	return r
}

func TestDispatchNotifications_EndToEndScenario(t *testing.T) {
	f := newNotifierFixture(t)
	loader := testutil.NewLoader()
	loader.Set(record.SourceBill, bill("X1", "NY", "DENTAL"))

	res, err := newTestReconciler(f.records, loader).RunCycle(context.Background(), record.SourceBill)
	require.NoError(t, err)
	require.Equal(t, 1, res.Source(record.SourceBill).Inserted)

	f.prefs.Add("ny@example.com", []string{"NY"}, []string{"DENTAL"})
	f.prefs.Add("ca@example.com", []string{"CA"}, []string{"DENTAL"})

	sent, err := f.service.DispatchNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	msgs := f.gateway.Sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ny@example.com", msgs[0].To)
	assert.Equal(t, 1, msgs[0].Records)
	assert.Contains(t, msgs[0].HTML, "New York: Bill X1")
}

func TestDispatchNotifications_NoNewRecords(t *testing.T) {
	f := newNotifierFixture(t)
	f.records.Seed(bill("OLD", "NY", "DENTAL"))
	f.prefs.Add("ny@example.com", []string{"NY"}, []string{"DENTAL"})

	sent, err := f.service.DispatchNotifications(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.gateway.Sent())
}

func TestDispatchNotifications_SendFailureDoesNotBlockOthers(t *testing.T) {
	f := newNotifierFixture(t)
	f.records.Seed(flaggedNew(bill("B1", "TX", "DENTAL")), flaggedNew(alert("5", "Texas", "VISION")))
	f.prefs.Add("a@example.com", []string{"TX"}, []string{"DENTAL"})
	f.prefs.Add("b@example.com", []string{"Texas"}, []string{"DENTAL", "VISION"})
	f.prefs.Add("c@example.com", []string{"TX"}, []string{"VISION"})
	f.gateway.Fail["b@example.com"] = errors.New("503 service unavailable")

	report, err := f.service.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Sent())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, f.gateway.Recipients())

	for _, d := range report.Deliveries {
		if d.Email == "b@example.com" {
			assert.Equal(t, notification.StatusSendFailed, d.Status)
			assert.Equal(t, 2, d.Records)
			assert.ErrorIs(t, d.Err, ErrDelivery)
		}
	}
}

func TestDispatchNotifications_ExcludesBrokenPreferences(t *testing.T) {
	f := newNotifierFixture(t)
	f.records.Seed(flaggedNew(bill("B1", "NY", "DENTAL")))
	f.prefs.AddRaw("broken@example.com", "not json")
	f.prefs.Add("ok@example.com", []string{"NY"}, []string{"DENTAL"})

	report, err := f.service.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Excluded)
	assert.Equal(t, 1, report.Sent())
}

func TestDispatchNotifications_StoreFailure(t *testing.T) {
	f := newNotifierFixture(t)
	f.records.ListErr = errors.New("connection reset")

	sent, err := f.service.DispatchNotifications(context.Background())
	assert.Zero(t, sent)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
