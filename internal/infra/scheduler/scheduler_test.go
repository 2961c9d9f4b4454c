package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"medirate_alerts/internal/app"
	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/testutil"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	cycles     int
	dispatches int
	newRecs    []*record.Record
	fetchErr   error
	cycleErr   error
	pending    *cycle.Run
	pendingErr error
}

func (f *fakeJobs) PendingDispatch(ctx context.Context) (*cycle.Run, error) {
	return f.pending, f.pendingErr
}

func (f *fakeJobs) RunFullCycle(ctx context.Context) (*cycle.Result, error) {
	f.cycles++
	if f.cycleErr != nil {
		return nil, f.cycleErr
	}
	return cycle.NewResult(record.Sources(), time.Now()), nil
}

func (f *fakeJobs) FetchNewRecords(ctx context.Context) ([]*record.Record, error) {
	return f.newRecs, f.fetchErr
}

func (f *fakeJobs) Dispatch(ctx context.Context) (*notification.Report, error) {
	f.dispatches++
	return &notification.Report{}, nil
}

func TestRunNotifyJob_SkipsWithoutNewRecords(t *testing.T) {
	jobs := &fakeJobs{pending: &cycle.Run{ID: "run-1"}}
	log, hook := testutil.Logger()
	s := NewCycleScheduler(jobs, log, "0 6 * * *", "30 6 * * *")

	s.RunNotifyJob()
	assert.Zero(t, jobs.dispatches)
	assert.Equal(t, "No new records. Skipping dispatch.", hook.LastEntry().Message)

	jobs.newRecs = []*record.Record{record.NewAlert("1")}
	s.RunNotifyJob()
	assert.Equal(t, 1, jobs.dispatches)
	assert.Equal(t, "run-1", hook.LastEntry().Data["cycle_id"])
}

func TestRunNotifyJob_SkipsDispatchedCycle(t *testing.T) {
	jobs := &fakeJobs{newRecs: []*record.Record{record.NewAlert("1")}}
	log, hook := testutil.Logger()
	s := NewCycleScheduler(jobs, log, "0 6 * * *", "30 6 * * *")

	s.RunNotifyJob()
	assert.Zero(t, jobs.dispatches)
	assert.Equal(t, "Latest cycle already dispatched. Skipping dispatch.", hook.LastEntry().Message)

	jobs.pending, jobs.pendingErr = nil, errors.New("connection refused")
	s.RunNotifyJob()
	assert.Zero(t, jobs.dispatches)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestRunNotifyJob_FetchError(t *testing.T) {
	jobs := &fakeJobs{pending: &cycle.Run{ID: "run-1"}, fetchErr: errors.New("connection refused")}
	log, hook := testutil.Logger()
	s := NewCycleScheduler(jobs, log, "0 6 * * *", "30 6 * * *")

	s.RunNotifyJob()
	assert.Zero(t, jobs.dispatches)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestRunCycleJob(t *testing.T) {
	jobs := &fakeJobs{}
	log, hook := testutil.Logger()
	s := NewCycleScheduler(jobs, log, "0 6 * * *", "30 6 * * *")

	s.RunCycleJob()
	assert.Equal(t, 1, jobs.cycles)
	assert.Equal(t, "Reconciliation cycle completed", hook.LastEntry().Message)

	jobs.cycleErr = app.ErrCycleInProgress
	s.RunCycleJob()
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestStart_InvalidSpec(t *testing.T) {
	log, _ := testutil.Logger()
	s := NewCycleScheduler(&fakeJobs{}, log, "not a spec", "30 6 * * *")
	assert.ErrorContains(t, s.Start(), "cycle cron job")

	s = NewCycleScheduler(&fakeJobs{}, log, "0 6 * * *", "30 6 * * *")
	require.NoError(t, s.Start())
	s.Stop()
}
