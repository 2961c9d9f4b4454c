package app

import (
	"testing"
	"time"

	"medirate_alerts/internal/domain/record"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestDigestBuilder_Golden(t *testing.T) {
	b := record.NewBill("https://www.billtrack50.com/billdetail/1001")
	b.Jurisdiction = "NY"
	b.Categories = record.Categories{"DENTAL", "", "ORAL SURGERY"}
	b.Bill.BillNumber = "A 1234"
	b.Bill.Title = "Dental Rate Adjustment Act"
	b.Bill.Summary = "Raises dental fee schedule rates by five percent."
	b.Bill.Status = "In Committee"
	b.Bill.LastAction = "Referred to Health Committee"
	b.Bill.IntroducedDate = date(2025, 1, 15)
	b.Bill.ActionDate = date(2025, 3, 2)
	b.Bill.Sponsors = "Jane Doe"

	a := record.NewAlert("5501")
	a.Jurisdiction = "Texas"
	a.Categories = record.Categories{"VISION"}
	a.Alert.Subject = "Updated vision billing guidance"
	a.Alert.Link = "https://www.tmhp.com/news/5501"
	a.Alert.AnnouncementDate = date(2025, 3, 10)

	builder, err := NewDigestBuilder()
	require.NoError(t, err)

	msg, err := builder.Build("reader@example.com", []*record.Record{b, a})
	require.NoError(t, err)

	assert.Equal(t, "reader@example.com", msg.To)
	assert.Equal(t, "New Medicaid Alerts Relevant to You - 2 Updates", msg.Subject)
	assert.Equal(t, 2, msg.Records)

	g := goldie.New(t)
	g.Assert(t, "digest_bill_and_alert", []byte(msg.HTML))
}

func TestDigestBuilder_Fallbacks(t *testing.T) {
	b := record.NewBill("")
	b.Bill.BillNumber = "SB 7"

	builder, err := NewDigestBuilder()
	require.NoError(t, err)

	msg, err := builder.Build("reader@example.com", []*record.Record{b})
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "Unknown State: SB 7")
	assert.Contains(t, msg.HTML, "Service Lines:</span> N/A")
	assert.Contains(t, msg.HTML, "No summary available.")
	assert.Contains(t, msg.HTML, `href="#"`)
	assert.NotContains(t, msg.HTML, "Sponsors:")
}

func TestDigestBuilder_EscapesContent(t *testing.T) {
	a := record.NewAlert("9")
	a.Jurisdiction = "CA"
	a.Categories = record.Categories{"DENTAL"}
	a.Alert.Subject = "<script>alert(1)</script>"

	builder, err := NewDigestBuilder()
	require.NoError(t, err)

	msg, err := builder.Build("reader@example.com", []*record.Record{a})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestDigestBuilder_NoRecords(t *testing.T) {
	builder, err := NewDigestBuilder()
	require.NoError(t, err)

	_, err = builder.Build("reader@example.com", nil)
	assert.Error(t, err)
}
