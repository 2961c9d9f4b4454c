package app

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/jurisdiction"
)

//go:embed templates/digest.html.tmpl
var templateFS embed.FS

const (
	digestDateLayout  = "2006-01-02"
	noTitle           = "No Title"
	noSummary         = "No summary available."
	noServiceLines    = "N/A"
	missingLink       = "#"
	digestSubjectFmt  = "New Medicaid Alerts Relevant to You - %d Updates"
	digestTemplateKey = "digest"
)

// DigestBuilder renders one subscriber's matched records into an HTML message.
type DigestBuilder struct {
	tmpl *template.Template
}

func NewDigestBuilder() (*DigestBuilder, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/digest.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest template: %w", err)
	}
	return &DigestBuilder{tmpl: tmpl}, nil
}

type digestView struct {
	Subject string
	Cards   []cardView
}

type cardView struct {
	State        string
	Title        string
	ServiceLines string
	Summary      string
	Details      []detailView
	URL          string
}

type detailView struct {
	Label string
	Value string
}

// Build renders the digest for email. One card per record, in the given order.
func (b *DigestBuilder) Build(email string, records []*record.Record) (notification.Message, error) {
	if len(records) == 0 {
		return notification.Message{}, fmt.Errorf("no records to send to %s", email)
	}

	view := digestView{
		Subject: fmt.Sprintf(digestSubjectFmt, len(records)),
		Cards:   make([]cardView, 0, len(records)),
	}
	for _, r := range records {
		view.Cards = append(view.Cards, card(r))
	}

	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, digestTemplateKey, view); err != nil {
		return notification.Message{}, fmt.Errorf("failed to render digest for %s: %w", email, err)
	}
	return notification.Message{
		To:      email,
		Subject: view.Subject,
		HTML:    buf.String(),
		Records: len(records),
	}, nil
}

func card(r *record.Record) cardView {
	c := cardView{
		State:        jurisdiction.DisplayName(r.Jurisdiction),
		Title:        orDefault(r.Title(), noTitle),
		ServiceLines: orDefault(strings.Join(r.Categories.Labels(), ", "), noServiceLines),
		URL:          orDefault(r.Link(), missingLink),
	}

	switch r.Source {
	case record.SourceBill:
		c.Summary = orDefault(r.Summary(), noSummary)
		c.Details = appendDetail(c.Details, "Status", r.Bill.Status)
		c.Details = appendDetail(c.Details, "Committee", r.Bill.LastAction)
		c.Details = appendDetail(c.Details, "Introduction Date", formatDate(r.Bill.IntroducedDate))
		c.Details = appendDetail(c.Details, "Last Action Date", formatDate(r.Bill.ActionDate))
		c.Details = appendDetail(c.Details, "Sponsors", r.Bill.Sponsors)
	case record.SourceProviderAlert:
		c.Summary = r.Summary()
		c.Details = appendDetail(c.Details, "Announcement Date", formatDate(r.Alert.AnnouncementDate))
	}
	return c
}

func appendDetail(details []detailView, label, value string) []detailView {
	if value = strings.TrimSpace(value); value == "" {
		return details
	}
	return append(details, detailView{Label: label, Value: value})
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(digestDateLayout)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
