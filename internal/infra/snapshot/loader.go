package snapshot

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"medirate_alerts/internal/app"
	"medirate_alerts/internal/domain/record"

	"github.com/sirupsen/logrus"
)

// nullTokens are cell values exported for missing data.
var nullTokens = map[string]struct{}{
	"nan":  {},
	"nat":  {},
	"null": {},
	"none": {},
}

// Loader reads CSV exports from a directory according to the feed definitions.
type Loader struct {
	dir   string
	feeds *Feeds
	log   *logrus.Entry
	now   func() time.Time
}

var _ record.Loader = (*Loader)(nil)

func NewLoader(dir string, feeds *Feeds, log *logrus.Entry) *Loader {
	return &Loader{dir: dir, feeds: feeds, log: log, now: time.Now}
}

// Check resolves the file src would be loaded from without reading it.
func (l *Loader) Check(ctx context.Context, src record.Source) (string, error) {
	feed, err := l.feeds.For(src)
	if err != nil {
		return "", err
	}
	return l.resolve(feed)
}

// Load reads the current export of src.
func (l *Loader) Load(ctx context.Context, src record.Source) (*record.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	feed, err := l.feeds.For(src)
	if err != nil {
		return nil, err
	}
	path, err := l.resolve(feed)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	snap, err := parse(f, src, feed)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	snap.Name = filepath.Base(path)
	snap.TakenAt = l.now().UTC()

	l.log.WithFields(logrus.Fields{
		"source": src,
		"file":   snap.Name,
		"rows":   len(snap.Rows),
		"issues": len(snap.Issues),
	}).Debug("Snapshot parsed")
	return snap, nil
}

// resolve finds the feed file. Files with a month token are searched from the current
// month back through LookbackMonths earlier months.
func (l *Loader) resolve(feed Feed) (string, error) {
	if !strings.Contains(feed.File, MonthToken) {
		path := filepath.Join(l.dir, feed.File)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoSnapshotAvailable, err)
		}
		return path, nil
	}

	now := l.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i <= feed.LookbackMonths; i++ {
		month := first.AddDate(0, -i, 0)
		path := filepath.Join(l.dir, strings.ReplaceAll(feed.File, MonthToken, month.Format("0106")))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s within %d months", ErrNoSnapshotAvailable, feed.File, feed.LookbackMonths)
}

func parse(r io.Reader, src record.Source, feed Feed) (*record.Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if canonical, ok := feed.Aliases[name]; ok {
			name = canonical
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	if _, ok := index[feed.KeyColumn]; !ok {
		return nil, fmt.Errorf("key column %q not in header", feed.KeyColumn)
	}

	snap := &record.Snapshot{Source: src, SentinelPatterns: feed.Sentinels}
	for line := 1; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		cell := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(fields) {
				return ""
			}
			return clean(fields[i])
		}
		snap.Rows = append(snap.Rows, parseRow(snap, line, cell, src, feed))
	}
	return snap, nil
}

func parseRow(snap *record.Snapshot, line int, cell func(string) string, src record.Source, feed Feed) *record.Record {
	key := cell(feed.KeyColumn)
	if feed.NumericKey && key != "" && !snap.IsSentinel(&record.Record{NaturalKey: key}) {
		id, err := numericKey(key)
		if err != nil {
			snap.Issues = append(snap.Issues, &app.RowParseError{Source: src, Row: line, Column: feed.KeyColumn, Value: key, Err: err})
		}
		key = id
	}

	var rec *record.Record
	if src == record.SourceBill {
		rec = record.NewBill(key)
	} else {
		rec = record.NewAlert(key)
	}

	for _, c := range record.ColumnsFor(src) {
		v := cell(c.Name)
		if c.Kind == record.KindText {
			c.SetText(rec, v)
			continue
		}
		if v == "" {
			continue
		}
		d, err := parseDate(v, feed.DateLayouts)
		if err != nil {
			snap.Issues = append(snap.Issues, &app.RowParseError{Source: src, Row: line, Column: c.Name, Value: v, Err: err})
			continue
		}
		c.SetDate(rec, &d)
	}
	return rec
}

// numericKey accepts integer ids, including the "5501.0" form spreadsheet exports
// produce. Anything else yields a blank key.
func numericKey(v string) (string, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int64(f)) {
		return "", fmt.Errorf("not an integer id")
	}
	return strconv.FormatInt(int64(f), 10), nil
}

func parseDate(v string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("no date layout matched")
}

func clean(v string) string {
	v = strings.TrimSpace(v)
	if _, ok := nullTokens[strings.ToLower(v)]; ok {
		return ""
	}
	return v
}

// normalizeHeader lower-cases a header and joins its words with underscores.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", ".", "_", "-", "_").Replace(h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return strings.Trim(h, "_")
}
