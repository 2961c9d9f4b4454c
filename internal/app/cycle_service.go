package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"

	"github.com/sirupsen/logrus"
)

var ErrCycleInProgress = fmt.Errorf("a reconciliation or dispatch is already running")

// Reporter pushes operator summaries somewhere visible, e.g. a Telegram chat.
type Reporter interface {
	ReportCycle(ctx context.Context, res *cycle.Result) error
	ReportDispatch(ctx context.Context, report *notification.Report) error
}

// FeedChecker resolves the feed file a source would be loaded from.
type FeedChecker interface {
	Check(ctx context.Context, src record.Source) (string, error)
}

// FeedStatus is the availability of one source's feed.
type FeedStatus struct {
	Source record.Source
	File   string
	Err    error
}

// ConnectionStatus is the outcome of CheckConnections.
type ConnectionStatus struct {
	StoreErr error
	Feeds    []FeedStatus
}

// OK reports whether the store and every feed are reachable.
func (s ConnectionStatus) OK() bool {
	if s.StoreErr != nil {
		return false
	}
	for _, f := range s.Feeds {
		if f.Err != nil {
			return false
		}
	}
	return true
}

// CycleService is the entry point used by the CLI, scheduler, HTTP API and bot.
// Reconciliations and dispatches never overlap.
type CycleService struct {
	reconciler *Reconciler
	notifier   *NotificationService
	records    record.Repository
	runs       cycle.RunRepository
	feeds      FeedChecker
	reporter   Reporter // optional
	log        *logrus.Entry

	mu sync.Mutex
}

func NewCycleService(
	reconciler *Reconciler,
	notifier *NotificationService,
	records record.Repository,
	runs cycle.RunRepository,
	feeds FeedChecker,
	log *logrus.Entry,
) *CycleService {
	return &CycleService{
		reconciler: reconciler,
		notifier:   notifier,
		records:    records,
		runs:       runs,
		feeds:      feeds,
		log:        log,
	}
}

// SetReporter enables operator summaries. The bot is built after the service, so this
// cannot be a constructor argument.
func (s *CycleService) SetReporter(r Reporter) {
	s.reporter = r
}

// RunBillReconciliation runs a cycle over the bill feed only.
func (s *CycleService) RunBillReconciliation(ctx context.Context) (*cycle.Result, error) {
	return s.run(ctx, record.SourceBill)
}

// RunAlertReconciliation runs a cycle over the provider alert feed only.
func (s *CycleService) RunAlertReconciliation(ctx context.Context) (*cycle.Result, error) {
	return s.run(ctx, record.SourceProviderAlert)
}

// RunFullCycle reconciles bills then alerts under a single flag reset.
func (s *CycleService) RunFullCycle(ctx context.Context) (*cycle.Result, error) {
	return s.run(ctx, record.Sources()...)
}

func (s *CycleService) run(ctx context.Context, sources ...record.Source) (*cycle.Result, error) {
	if !s.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.mu.Unlock()

	res, err := s.reconciler.RunCycle(ctx, sources...)
	log := s.log.WithField("cycle_id", res.ID.String())

	if saveErr := s.runs.Save(ctx, res.Run()); saveErr != nil {
		log.WithError(saveErr).Error("Failed to persist cycle run")
	}
	if s.reporter != nil {
		if repErr := s.reporter.ReportCycle(ctx, res); repErr != nil {
			log.WithError(repErr).Warn("Failed to report cycle")
		}
	}
	return res, err
}

// FetchNewRecords returns the records inserted by the most recent cycle, bills first.
func (s *CycleService) FetchNewRecords(ctx context.Context) ([]*record.Record, error) {
	recs, err := s.records.ListNew(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list new records: %w", err)
	}
	return recs, nil
}

// ListUncategorized returns stored rows of src that carry no service line, which never
// match any subscriber.
func (s *CycleService) ListUncategorized(ctx context.Context, src record.Source) ([]*record.Record, error) {
	recs, err := s.records.ListUncategorized(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized %s records: %w", src, err)
	}
	return recs, nil
}

// DispatchNotifications sends digests for the current new records and returns the
// number sent.
func (s *CycleService) DispatchNotifications(ctx context.Context) (int, error) {
	report, err := s.Dispatch(ctx)
	if err != nil {
		return 0, err
	}
	return report.Sent(), nil
}

// Dispatch is DispatchNotifications with per-recipient outcomes.
func (s *CycleService) Dispatch(ctx context.Context) (*notification.Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.mu.Unlock()

	report, err := s.notifier.Dispatch(ctx)
	if err != nil {
		return report, err
	}
	s.markLatestDispatched(ctx)
	if s.reporter != nil && len(report.Deliveries) > 0 {
		if repErr := s.reporter.ReportDispatch(ctx, report); repErr != nil {
			s.log.WithError(repErr).Warn("Failed to report dispatch")
		}
	}
	return report, nil
}

// PendingDispatch returns the latest persisted cycle when its new records have not been
// dispatched yet, and nil when there is no cycle or it was already dispatched.
func (s *CycleService) PendingDispatch(ctx context.Context) (*cycle.Run, error) {
	runs, err := s.runs.ListRecent(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}
	if len(runs) == 0 || runs[0].DispatchedAt != nil {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *CycleService) markLatestDispatched(ctx context.Context) {
	runs, err := s.runs.ListRecent(ctx, 1)
	if err != nil {
		s.log.WithError(err).Warn("Failed to load latest run after dispatch")
		return
	}
	if len(runs) == 0 {
		return
	}
	log := s.log.WithField("cycle_id", runs[0].ID)
	if err := s.runs.MarkDispatched(ctx, runs[0].ID, time.Now().UTC()); err != nil {
		log.WithError(err).Warn("Failed to mark run dispatched")
		return
	}
	log.Info("Run marked dispatched")
}

// CheckConnections pings the store and resolves every feed file.
func (s *CycleService) CheckConnections(ctx context.Context) ConnectionStatus {
	var status ConnectionStatus
	if err := s.records.Ping(ctx); err != nil {
		status.StoreErr = &SourceUnavailableError{Stage: "ping", Err: err}
	}
	for _, src := range record.Sources() {
		file, err := s.feeds.Check(ctx, src)
		fs := FeedStatus{Source: src, File: file}
		if err != nil {
			fs.Err = &SourceUnavailableError{Source: src, Stage: "check", Err: err}
		}
		status.Feeds = append(status.Feeds, fs)
	}
	return status
}

// RecentRuns returns the latest persisted cycles, newest first.
func (s *CycleService) RecentRuns(ctx context.Context, limit int) ([]cycle.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	runs, err := s.runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", err)
	}
	return runs, nil
}
