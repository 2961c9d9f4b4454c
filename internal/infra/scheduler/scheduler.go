package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medirate_alerts/internal/app"
	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	cycleTimeout  = 30 * time.Minute
	notifyTimeout = 15 * time.Minute
)

// Jobs is the part of app.CycleService the scheduler triggers.
type Jobs interface {
	RunFullCycle(ctx context.Context) (*cycle.Result, error)
	FetchNewRecords(ctx context.Context) ([]*record.Record, error)
	PendingDispatch(ctx context.Context) (*cycle.Run, error)
	Dispatch(ctx context.Context) (*notification.Report, error)
}

type CycleScheduler struct {
	cronEngine     *cron.Cron
	jobs           Jobs
	logger         *logrus.Entry
	cronSpecCycle  string
	cronSpecNotify string
}

func NewCycleScheduler(
	jobs Jobs,
	logger *logrus.Entry,
	cronSpecCycle string, // e.g., "0 6 * * *" (06:00 daily)
	cronSpecNotify string, // e.g., "30 6 * * *" (06:30 daily, after the cycle)
) *CycleScheduler {
	return &CycleScheduler{
		cronEngine:     cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		jobs:           jobs,
		logger:         logger,
		cronSpecCycle:  cronSpecCycle,
		cronSpecNotify: cronSpecNotify,
	}
}

// Start registers both jobs and starts the cron engine. An invalid spec is returned
// before anything runs.
func (s *CycleScheduler) Start() error {
	s.logger.Info("Starting cycle scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecCycle, s.RunCycleJob); err != nil {
		return fmt.Errorf("could not add cycle cron job: %w", err)
	}
	if _, err := s.cronEngine.AddFunc(s.cronSpecNotify, s.RunNotifyJob); err != nil {
		return fmt.Errorf("could not add notify cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"cycle_spec":  s.cronSpecCycle,
		"notify_spec": s.cronSpecNotify,
	}).Info("Cycle scheduler started with jobs")
	return nil
}

// RunCycleJob runs one full reconciliation cycle.
func (s *CycleScheduler) RunCycleJob() {
	s.logger.Info("Cron job triggered for reconciliation cycle")
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	res, err := s.jobs.RunFullCycle(ctx)
	switch {
	case errors.Is(err, app.ErrCycleInProgress):
		s.logger.Warn("Previous run still in progress, skipping cycle")
	case err != nil:
		s.logger.WithError(err).Error("Reconciliation cycle failed")
	default:
		t := res.Totals()
		s.logger.WithFields(logrus.Fields{
			"cycle_id": res.ID.String(),
			"inserted": t.Inserted,
			"updated":  t.Updated,
			"failed":   t.Failed,
		}).Info("Reconciliation cycle completed")
	}
}

// RunNotifyJob dispatches digests for the latest cycle. It is a no-op when that cycle was
// already dispatched (a skipped cycle job or a manual notify) or flagged nothing new.
func (s *CycleScheduler) RunNotifyJob() {
	s.logger.Info("Cron job triggered for digest dispatch")
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	run, err := s.jobs.PendingDispatch(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Could not load the latest cycle")
		return
	}
	if run == nil {
		s.logger.Info("Latest cycle already dispatched. Skipping dispatch.")
		return
	}
	log := s.logger.WithField("cycle_id", run.ID)

	recs, err := s.jobs.FetchNewRecords(ctx)
	if err != nil {
		log.WithError(err).Error("Could not check for new records")
		return
	}
	if len(recs) == 0 {
		log.Info("No new records. Skipping dispatch.")
		return
	}

	log.WithField("new_records", len(recs)).Info("Dispatching digests")
	report, err := s.jobs.Dispatch(ctx)
	switch {
	case errors.Is(err, app.ErrCycleInProgress):
		log.Warn("Reconciliation in progress, skipping dispatch")
	case err != nil:
		log.WithError(err).Error("Digest dispatch failed")
	default:
		log.WithFields(logrus.Fields{
			"sent":   report.Sent(),
			"failed": report.Failed(),
		}).Info("Digest dispatch completed")
	}
}

func (s *CycleScheduler) Stop() {
	s.logger.Info("Stopping cycle scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Cycle scheduler gracefully stopped.")
}
