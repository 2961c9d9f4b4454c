package record

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestColumnEqual_Text(t *testing.T) {
	a, b := NewBill("https://bills/1"), NewBill("https://bills/1")

	a.Bill.Summary = "  Rate change "
	b.Bill.Summary = "Rate change"
	assert.True(t, ColBillSummary.Equal(a, b), "surrounding whitespace is not a change")

	a.Bill.Summary = ""
	b.Bill.Summary = "   "
	assert.True(t, ColBillSummary.Equal(a, b), "blank and null are equal")

	b.Bill.Summary = "Rate freeze"
	assert.False(t, ColBillSummary.Equal(a, b))
}

func TestColumnEqual_Date(t *testing.T) {
	a, b := NewBill("u"), NewBill("u")
	assert.True(t, ColActionDate.Equal(a, b), "both null")

	a.Bill.ActionDate = day(2024, 3, 5)
	assert.False(t, ColActionDate.Equal(a, b), "null vs set")

	later := time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC)
	b.Bill.ActionDate = &later
	assert.True(t, ColActionDate.Equal(a, b), "same calendar day")

	b.Bill.ActionDate = day(2024, 3, 6)
	assert.False(t, ColActionDate.Equal(a, b))
}

func TestColumnValue(t *testing.T) {
	r := NewAlert("42")
	assert.Equal(t, sql.NullString{}, ColSubject.Value(r))
	assert.Equal(t, sql.NullTime{}, ColAnnouncementDate.Value(r))

	r.Alert.Subject = " Dental fee schedule "
	r.Alert.AnnouncementDate = day(2025, 1, 2)
	assert.Equal(t, sql.NullString{String: "Dental fee schedule", Valid: true}, ColSubject.Value(r))
	assert.Equal(t, sql.NullTime{Time: *day(2025, 1, 2), Valid: true}, ColAnnouncementDate.Value(r))
}

func TestDiff(t *testing.T) {
	stored := NewBill("X1")
	stored.Jurisdiction = "NY"
	stored.Categories[0] = "DENTAL"
	stored.Bill.Title = "Dental rates"
	stored.Bill.Summary = "old summary"
	stored.Bill.ActionDate = day(2024, 1, 10)

	incoming := stored.Clone()
	assert.Empty(t, Diff(incoming, stored))

	incoming.Bill.Summary = "new summary"
	changed := Diff(incoming, stored)
	require.Len(t, changed, 1)
	assert.Equal(t, "ai_summary", changed[0].Name)

	incoming.Categories[2] = "VISION"
	assert.Equal(t, []string{"ai_summary", "service_lines_impacted_2"}, ColumnNames(Diff(incoming, stored)))
}

func TestColumnCopy(t *testing.T) {
	src, dst := NewBill("u"), NewBill("u")
	src.Bill.IntroducedDate = day(2023, 12, 1)
	src.Bill.Sponsors = "Smith"

	ColCreated.Copy(dst, src)
	ColSponsors.Copy(dst, src)

	require.NotNil(t, dst.Bill.IntroducedDate)
	assert.NotSame(t, src.Bill.IntroducedDate, dst.Bill.IntroducedDate)
	assert.Equal(t, "Smith", dst.Bill.Sponsors)
}

func TestCategories(t *testing.T) {
	c := Categories{"Dental", "", " vision ", ""}
	assert.Equal(t, []string{"Dental", "vision"}, c.Labels())
	assert.Contains(t, c.Set(), "DENTAL")
	assert.Contains(t, c.Set(), "VISION")
	assert.False(t, c.Empty())
	assert.True(t, Categories{}.Empty())
}

func TestRecordDisplayFields(t *testing.T) {
	b := NewBill("https://bills/9")
	b.Bill.BillNumber = "HB 9"
	assert.Equal(t, "HB 9", b.Title(), "falls back to the bill number")
	assert.Equal(t, "https://bills/9", b.Link())

	a := NewAlert("7")
	a.Alert.Subject = "Provider notice"
	a.Alert.Link = "https://alerts/7"
	assert.Equal(t, "Provider notice", a.Title())
	assert.Equal(t, "https://alerts/7", a.Link())
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource("Bills")
	require.NoError(t, err)
	assert.Equal(t, SourceBill, s)

	s, err = ParseSource("alerts")
	require.NoError(t, err)
	assert.Equal(t, SourceProviderAlert, s)

	_, err = ParseSource("memos")
	assert.Error(t, err)
}

func TestSnapshotIsSentinel(t *testing.T) {
	s := &Snapshot{SentinelPatterns: []string{"** Data provided by www.BillTrack50.com **"}}

	footer := NewBill("** Data provided by www.BillTrack50.com **")
	assert.True(t, s.IsSentinel(footer))

	lower := NewBill("")
	lower.Jurisdiction = "** data provided by www.billtrack50.com **"
	assert.True(t, s.IsSentinel(lower))

	assert.False(t, s.IsSentinel(NewBill("https://bills/1")))
	assert.False(t, (&Snapshot{}).IsSentinel(footer))
}
