// internal/app/notification_service.go
package app

import (
	"context"

	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/domain/subscriber"

	"github.com/sirupsen/logrus"
)

// NotificationService matches the records flagged new in the last cycle against
// subscriber preferences and sends one digest per interested subscriber.
type NotificationService struct {
	records record.Repository
	prefs   subscriber.Repository
	matcher *Matcher
	digests *DigestBuilder
	gateway notification.Gateway
	workers int
	log     *logrus.Entry
}

func NewNotificationService(
	records record.Repository,
	prefs subscriber.Repository,
	matcher *Matcher,
	digests *DigestBuilder,
	gateway notification.Gateway,
	workers int,
	log *logrus.Entry,
) *NotificationService {
	if workers < 1 {
		workers = 1
	}
	return &NotificationService{
		records: records,
		prefs:   prefs,
		matcher: matcher,
		digests: digests,
		gateway: gateway,
		workers: workers,
		log:     log,
	}
}

// DispatchNotifications sends the digests and returns how many went out. Zero is a
// valid outcome. Only a failure to read the store is returned as an error.
func (s *NotificationService) DispatchNotifications(ctx context.Context) (int, error) {
	report, err := s.Dispatch(ctx)
	if err != nil {
		return 0, err
	}
	return report.Sent(), nil
}

// Dispatch is DispatchNotifications with the per-recipient outcomes.
func (s *NotificationService) Dispatch(ctx context.Context) (*notification.Report, error) {
	report := &notification.Report{}

	newRecords, err := s.records.ListNew(ctx)
	if err != nil {
		return report, &SourceUnavailableError{Stage: "list new records", Err: err}
	}
	report.NewRecords = len(newRecords)
	if len(newRecords) == 0 {
		s.log.Info("No new records, no digests to send")
		return report, nil
	}

	raws, err := s.prefs.ListWithPreferences(ctx)
	if err != nil {
		return report, &SourceUnavailableError{Stage: "list preferences", Err: err}
	}
	report.Subscribers = len(raws)

	matched := s.matcher.MatchStored(newRecords, raws)
	report.Excluded = len(matched.Excluded)
	if len(matched.Recipients) == 0 {
		s.log.WithField("new_records", len(newRecords)).Info("No subscriber matched the new records")
		return report, nil
	}

	report.Deliveries = make([]notification.Delivery, len(matched.Recipients))
	indexes := make([]int, len(matched.Recipients))
	for i := range indexes {
		indexes[i] = i
	}

	// Each worker writes only its own slot of report.Deliveries.
	runPool(ctx, s.workers, indexes, func(ctx context.Context, workerID int, i int) {
		email := matched.Recipients[i]
		report.Deliveries[i] = s.deliver(ctx, email, matched.Matches[email], s.log.WithFields(logrus.Fields{
			"email":     email,
			"worker_id": workerID,
		}))
	})

	s.log.WithFields(logrus.Fields{
		"new_records": report.NewRecords,
		"recipients":  len(matched.Recipients),
		"sent":        report.Sent(),
		"failed":      report.Failed(),
		"excluded":    report.Excluded,
	}).Info("Digest dispatch finished")
	return report, nil
}

func (s *NotificationService) deliver(ctx context.Context, email string, records []*record.Record, log *logrus.Entry) notification.Delivery {
	d := notification.Delivery{Email: email, Records: len(records)}

	msg, err := s.digests.Build(email, records)
	if err != nil {
		d.Status = notification.StatusBuildFailed
		d.Err = &DeliveryError{Email: email, Stage: "build", Err: err}
		log.WithError(d.Err).Error("Digest could not be rendered, skipping recipient")
		return d
	}

	if err := s.gateway.Send(ctx, msg); err != nil {
		d.Status = notification.StatusSendFailed
		d.Err = &DeliveryError{Email: email, Stage: "send", Err: err}
		log.WithError(d.Err).Error("Digest could not be sent, skipping recipient")
		return d
	}

	d.Status = notification.StatusSent
	log.WithField("records", len(records)).Info("Digest sent")
	return d
}
