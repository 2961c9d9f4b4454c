package telegram

import (
	"context"
	"fmt"
	"strings"

	"medirate_alerts/internal/app"
	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/notification"
	domain "medirate_alerts/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// maxReportedFailures bounds the failure lines of a dispatch report.
const maxReportedFailures = 10

// Reporter posts cycle and dispatch summaries to the admin chat.
type Reporter struct {
	client domain.Client
	chatID int64
	log    *logrus.Entry
}

var _ app.Reporter = (*Reporter)(nil)

func NewReporter(client domain.Client, adminChatID int64, log *logrus.Entry) *Reporter {
	return &Reporter{client: client, chatID: adminChatID, log: log}
}

func (r *Reporter) ReportCycle(ctx context.Context, res *cycle.Result) error {
	if err := r.client.SendMessage(r.chatID, res.Summary(), nil); err != nil {
		return fmt.Errorf("failed to send cycle report: %w", err)
	}
	r.log.WithField("cycle_id", res.ID.String()).Debug("Cycle report sent")
	return nil
}

func (r *Reporter) ReportDispatch(ctx context.Context, report *notification.Report) error {
	if err := r.client.SendMessage(r.chatID, formatDispatch(report), nil); err != nil {
		return fmt.Errorf("failed to send dispatch report: %w", err)
	}
	return nil
}

func formatDispatch(report *notification.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Digests sent: %d, failed: %d\n", report.Sent(), report.Failed())
	fmt.Fprintf(&b, "New records: %d, subscribers: %d, excluded: %d",
		report.NewRecords, report.Subscribers, report.Excluded)

	shown := 0
	for _, d := range report.Deliveries {
		if d.Status == notification.StatusSent {
			continue
		}
		if shown == maxReportedFailures {
			fmt.Fprintf(&b, "\n... and %d more", report.Failed()-shown)
			break
		}
		fmt.Fprintf(&b, "\n%s %s: %v", d.Status, d.Email, d.Err)
		shown++
	}
	return b.String()
}
