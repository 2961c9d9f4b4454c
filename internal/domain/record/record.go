package record

import (
	"fmt"
	"strings"
	"time"
)

// Source discriminates the two feeds a Record can come from.
type Source string

const (
	SourceBill          Source = "bill"
	SourceProviderAlert Source = "provider_alert"
)

// Sources lists every feed in reconciliation order.
func Sources() []Source {
	return []Source{SourceBill, SourceProviderAlert}
}

// ParseSource accepts the canonical names plus the short "alert" alias.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bill", "bills":
		return SourceBill, nil
	case "provider_alert", "provider_alerts", "alert", "alerts":
		return SourceProviderAlert, nil
	default:
		return "", fmt.Errorf("unknown record source %q", s)
	}
}

// MaxCategories is the number of service-line slots a feed row carries.
const MaxCategories = 4

// Categories holds the impacted service lines in feed slot order. Empty slots are blank.
type Categories [MaxCategories]string

// Labels returns the non-blank labels in slot order, trimmed.
func (c Categories) Labels() []string {
	out := make([]string, 0, MaxCategories)
	for _, v := range c {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Set returns the upper-cased labels used for preference matching.
func (c Categories) Set() map[string]struct{} {
	out := make(map[string]struct{}, MaxCategories)
	for _, v := range c.Labels() {
		out[strings.ToUpper(v)] = struct{}{}
	}
	return out
}

// Empty reports whether no slot carries a label.
func (c Categories) Empty() bool {
	return len(c.Labels()) == 0
}

// BillDetails are the display fields specific to legislative bills.
type BillDetails struct {
	BillNumber     string
	Title          string
	Summary        string
	Status         string
	LastAction     string
	Sponsors       string
	ActionDate     *time.Time
	IntroducedDate *time.Time
}

// AlertDetails are the display fields specific to provider alerts.
type AlertDetails struct {
	Subject          string
	Summary          string
	Link             string
	AnnouncementDate *time.Time
}

// Record is one row of either feed. NaturalKey is the bill URL or the alert id.
type Record struct {
	Source       Source
	NaturalKey   string
	Jurisdiction string
	Categories   Categories
	IsNew        bool
	ExtractedAt  time.Time

	Bill  *BillDetails
	Alert *AlertDetails
}

// NewBill returns an empty bill record keyed by url.
func NewBill(url string) *Record {
	return &Record{Source: SourceBill, NaturalKey: strings.TrimSpace(url), Bill: &BillDetails{}}
}

// NewAlert returns an empty provider alert record keyed by its feed id.
func NewAlert(id string) *Record {
	return &Record{Source: SourceProviderAlert, NaturalKey: strings.TrimSpace(id), Alert: &AlertDetails{}}
}

// HasKey reports whether the record can be reconciled at all.
func (r *Record) HasKey() bool {
	return strings.TrimSpace(r.NaturalKey) != ""
}

// Title is the card heading: bill name (falling back to the bill number) or alert subject.
func (r *Record) Title() string {
	switch r.Source {
	case SourceBill:
		if t := strings.TrimSpace(r.bill().Title); t != "" {
			return t
		}
		return strings.TrimSpace(r.bill().BillNumber)
	case SourceProviderAlert:
		return strings.TrimSpace(r.alert().Subject)
	}
	return ""
}

// Summary is the free-text summary of either record kind.
func (r *Record) Summary() string {
	if r.Source == SourceBill {
		return strings.TrimSpace(r.bill().Summary)
	}
	return strings.TrimSpace(r.alert().Summary)
}

// Link points readers at the source document. For bills the natural key is the URL.
func (r *Record) Link() string {
	if r.Source == SourceBill {
		return r.NaturalKey
	}
	return strings.TrimSpace(r.alert().Link)
}

// Clone returns a deep copy so stored state can be handed out without aliasing.
func (r *Record) Clone() *Record {
	c := *r
	if r.Bill != nil {
		b := *r.Bill
		b.ActionDate = cloneTime(r.Bill.ActionDate)
		b.IntroducedDate = cloneTime(r.Bill.IntroducedDate)
		c.Bill = &b
	}
	if r.Alert != nil {
		a := *r.Alert
		a.AnnouncementDate = cloneTime(r.Alert.AnnouncementDate)
		c.Alert = &a
	}
	return &c
}

func (r *Record) bill() *BillDetails {
	if r.Bill == nil {
		r.Bill = &BillDetails{}
	}
	return r.Bill
}

func (r *Record) alert() *AlertDetails {
	if r.Alert == nil {
		r.Alert = &AlertDetails{}
	}
	return r.Alert
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
