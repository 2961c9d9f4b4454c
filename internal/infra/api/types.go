package api

import (
	"context"
	"time"

	"medirate_alerts/internal/app"
	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"
)

// Service is the part of app.CycleService exposed over HTTP.
type Service interface {
	RunFullCycle(ctx context.Context) (*cycle.Result, error)
	RunBillReconciliation(ctx context.Context) (*cycle.Result, error)
	RunAlertReconciliation(ctx context.Context) (*cycle.Result, error)
	FetchNewRecords(ctx context.Context) ([]*record.Record, error)
	ListUncategorized(ctx context.Context, src record.Source) ([]*record.Record, error)
	Dispatch(ctx context.Context) (*notification.Report, error)
	RecentRuns(ctx context.Context, limit int) ([]cycle.Run, error)
	CheckConnections(ctx context.Context) app.ConnectionStatus
}

var _ Service = (*app.CycleService)(nil)

type Handler struct {
	service Service
}

type sourceResultJSON struct {
	Source             string `json:"source"`
	SnapshotRows       int    `json:"snapshot_rows"`
	Inserted           int    `json:"inserted"`
	Updated            int    `json:"updated"`
	Skipped            int    `json:"skipped"`
	Failed             int    `json:"failed"`
	DroppedBlankKey    int    `json:"dropped_blank_key"`
	Sentinels          int    `json:"sentinels"`
	SnapshotDuplicates int    `json:"snapshot_duplicates"`
	ParseIssues        int    `json:"parse_issues"`
	Purged             int64  `json:"purged"`
	Error              string `json:"error,omitempty"`
}

type cycleJSON struct {
	ID         string             `json:"id"`
	Kind       cycle.Kind         `json:"kind"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	FlagsReset int64              `json:"flags_reset"`
	Sources    []sourceResultJSON `json:"sources"`
	Error      string             `json:"error,omitempty"`
}

func toCycleJSON(res *cycle.Result) cycleJSON {
	out := cycleJSON{
		ID:         res.ID.String(),
		Kind:       res.Kind,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		FlagsReset: res.FlagsReset,
		Sources:    make([]sourceResultJSON, 0, len(res.Sources)),
	}
	if err := res.FirstError(); err != nil {
		out.Error = err.Error()
	}
	for _, s := range res.Sources {
		sj := sourceResultJSON{
			Source:             string(s.Source),
			SnapshotRows:       s.SnapshotRows,
			Inserted:           s.Inserted,
			Updated:            s.Updated,
			Skipped:            s.Skipped,
			Failed:             s.Failed,
			DroppedBlankKey:    s.DroppedBlankKey,
			Sentinels:          s.Sentinels,
			SnapshotDuplicates: s.SnapshotDuplicates,
			ParseIssues:        s.ParseIssues,
			Purged:             s.Purged,
		}
		if s.Err != nil {
			sj.Error = s.Err.Error()
		}
		out.Sources = append(out.Sources, sj)
	}
	return out
}

type recordJSON struct {
	Source       string     `json:"source"`
	NaturalKey   string     `json:"natural_key"`
	State        string     `json:"state"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary,omitempty"`
	Link         string     `json:"link,omitempty"`
	Categories   []string   `json:"categories"`
	IsNew        bool       `json:"is_new"`
	ExtractedAt  time.Time  `json:"extracted_at"`
	ActionDate   *time.Time `json:"action_date,omitempty"`
	Announcement *time.Time `json:"announcement_date,omitempty"`
}

func toRecordsJSON(recs []*record.Record) []recordJSON {
	out := make([]recordJSON, 0, len(recs))
	for _, r := range recs {
		rj := recordJSON{
			Source:      string(r.Source),
			NaturalKey:  r.NaturalKey,
			State:       r.Jurisdiction,
			Title:       r.Title(),
			Summary:     r.Summary(),
			Link:        r.Link(),
			Categories:  r.Categories.Labels(),
			IsNew:       r.IsNew,
			ExtractedAt: r.ExtractedAt,
		}
		if r.Bill != nil {
			rj.ActionDate = r.Bill.ActionDate
		}
		if r.Alert != nil {
			rj.Announcement = r.Alert.AnnouncementDate
		}
		out = append(out, rj)
	}
	return out
}

type deliveryJSON struct {
	Email   string `json:"email"`
	Records int    `json:"records"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type dispatchJSON struct {
	NewRecords  int            `json:"new_records"`
	Subscribers int            `json:"subscribers"`
	Excluded    int            `json:"excluded"`
	Sent        int            `json:"sent"`
	Failed      int            `json:"failed"`
	Deliveries  []deliveryJSON `json:"deliveries"`
}

func toDispatchJSON(r *notification.Report) dispatchJSON {
	out := dispatchJSON{
		NewRecords:  r.NewRecords,
		Subscribers: r.Subscribers,
		Excluded:    r.Excluded,
		Sent:        r.Sent(),
		Failed:      r.Failed(),
		Deliveries:  make([]deliveryJSON, 0, len(r.Deliveries)),
	}
	for _, d := range r.Deliveries {
		dj := deliveryJSON{Email: d.Email, Records: d.Records, Status: string(d.Status)}
		if d.Err != nil {
			dj.Error = d.Err.Error()
		}
		out.Deliveries = append(out.Deliveries, dj)
	}
	return out
}
