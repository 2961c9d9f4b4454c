package record

import (
	"database/sql"
	"strings"
	"time"
)

// ColumnKind selects the equality and storage rules of a Column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindDate
)

// dateLayout is the calendar-day granularity dates are compared and stored at.
const dateLayout = "2006-01-02"

// Column is one comparable, updatable field of a record type. The sets below are the
// only columns the reconciler ever compares or writes; the name doubles as the store
// column and the canonical snapshot header.
type Column struct {
	Name string
	Kind ColumnKind

	text func(*Record) *string
	date func(*Record) **time.Time
}

func textColumn(name string, f func(*Record) *string) Column {
	return Column{Name: name, Kind: KindText, text: f}
}

func dateColumn(name string, f func(*Record) **time.Time) Column {
	return Column{Name: name, Kind: KindDate, date: f}
}

var (
	ColState = textColumn("state", func(r *Record) *string { return &r.Jurisdiction })

	ColCategory0 = textColumn("service_lines_impacted", func(r *Record) *string { return &r.Categories[0] })
	ColCategory1 = textColumn("service_lines_impacted_1", func(r *Record) *string { return &r.Categories[1] })
	ColCategory2 = textColumn("service_lines_impacted_2", func(r *Record) *string { return &r.Categories[2] })
	ColCategory3 = textColumn("service_lines_impacted_3", func(r *Record) *string { return &r.Categories[3] })

	ColBillNumber  = textColumn("bill_number", func(r *Record) *string { return &r.bill().BillNumber })
	ColBillTitle   = textColumn("name", func(r *Record) *string { return &r.bill().Title })
	ColBillSummary = textColumn("ai_summary", func(r *Record) *string { return &r.bill().Summary })
	ColBillStatus  = textColumn("bill_progress", func(r *Record) *string { return &r.bill().Status })
	ColLastAction  = textColumn("last_action", func(r *Record) *string { return &r.bill().LastAction })
	ColSponsors    = textColumn("sponsor_list", func(r *Record) *string { return &r.bill().Sponsors })
	ColActionDate  = dateColumn("action_date", func(r *Record) **time.Time { return &r.bill().ActionDate })
	ColCreated     = dateColumn("created", func(r *Record) **time.Time { return &r.bill().IntroducedDate })

	ColSubject          = textColumn("subject", func(r *Record) *string { return &r.alert().Subject })
	ColAlertSummary     = textColumn("summary", func(r *Record) *string { return &r.alert().Summary })
	ColLink             = textColumn("link", func(r *Record) *string { return &r.alert().Link })
	ColAnnouncementDate = dateColumn("announcement_date", func(r *Record) **time.Time { return &r.alert().AnnouncementDate })
)

// CategoryColumns are the service-line slots in slot order.
var CategoryColumns = []Column{ColCategory0, ColCategory1, ColCategory2, ColCategory3}

// BillColumns is the comparison and update set for bills.
var BillColumns = append([]Column{
	ColBillNumber, ColBillTitle, ColBillSummary, ColBillStatus, ColLastAction,
	ColActionDate, ColCreated, ColSponsors, ColState,
}, CategoryColumns...)

// AlertColumns is the comparison and update set for provider alerts.
var AlertColumns = append([]Column{
	ColState, ColSubject, ColAlertSummary, ColLink, ColAnnouncementDate,
}, CategoryColumns...)

// ColumnsFor returns the fixed column set of a source.
func ColumnsFor(src Source) []Column {
	if src == SourceBill {
		return BillColumns
	}
	return AlertColumns
}

// Text returns the trimmed text value. Date columns render as YYYY-MM-DD.
func (c Column) Text(r *Record) string {
	if c.Kind == KindDate {
		if t := c.Date(r); t != nil {
			return t.Format(dateLayout)
		}
		return ""
	}
	return strings.TrimSpace(*c.text(r))
}

// Date returns the date value, nil for text columns or unset dates.
func (c Column) Date(r *Record) *time.Time {
	if c.Kind != KindDate {
		return nil
	}
	return *c.date(r)
}

// Equal compares the column of two records. Blank and null text are equal; dates are
// compared by calendar day so formatting differences never count as changes.
func (c Column) Equal(a, b *Record) bool {
	if c.Kind == KindDate {
		da, db := c.Date(a), c.Date(b)
		if da == nil || db == nil {
			return da == nil && db == nil
		}
		return da.Format(dateLayout) == db.Format(dateLayout)
	}
	return c.Text(a) == c.Text(b)
}

// Value is the parameter written to the store for this column.
func (c Column) Value(r *Record) any {
	if c.Kind == KindDate {
		if t := c.Date(r); t != nil {
			return sql.NullTime{Time: *t, Valid: true}
		}
		return sql.NullTime{}
	}
	v := c.Text(r)
	return sql.NullString{String: v, Valid: v != ""}
}

// SetText assigns a text column.
func (c Column) SetText(r *Record, v string) {
	if c.Kind == KindText {
		*c.text(r) = strings.TrimSpace(v)
	}
}

// SetDate assigns a date column.
func (c Column) SetDate(r *Record, t *time.Time) {
	if c.Kind == KindDate {
		*c.date(r) = t
	}
}

// Copy assigns the column of src onto dst.
func (c Column) Copy(dst, src *Record) {
	if c.Kind == KindDate {
		c.SetDate(dst, cloneTime(c.Date(src)))
		return
	}
	c.SetText(dst, c.Text(src))
}

// Diff returns the columns of the record's source whose values differ between the
// incoming and the stored copy, in column-set order.
func Diff(incoming, stored *Record) []Column {
	var changed []Column
	for _, c := range ColumnsFor(incoming.Source) {
		if !c.Equal(incoming, stored) {
			changed = append(changed, c)
		}
	}
	return changed
}

// ColumnNames is a logging helper.
func ColumnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
