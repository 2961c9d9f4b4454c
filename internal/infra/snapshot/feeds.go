// Package snapshot reads feed exports from disk into typed record snapshots.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"medirate_alerts/internal/domain/record"

	"gopkg.in/yaml.v3"
)

// Validation errors
var (
	ErrNoFeeds             = errors.New("at least one feed is required")
	ErrUnknownFeedSource   = errors.New("feed source must be bill or provider_alert")
	ErrFeedMissingFile     = errors.New("file is required")
	ErrFeedMissingKey      = errors.New("key_column is required")
	ErrInvalidLookback     = errors.New("lookback_months must be between 0 and 24")
	ErrLookbackNeedsToken  = errors.New("lookback_months requires a {MMYY} token in file")
	ErrInvalidDateLayout   = errors.New("date_layouts entries must not be blank")
	ErrFeedNotConfigured   = errors.New("no feed configured for source")
	ErrNoSnapshotAvailable = errors.New("no snapshot file found")
)

// MonthToken is replaced by the export month, e.g. 0525 for May 2025.
const MonthToken = "{MMYY}"

var defaultDateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", "01/02/2006", "1/2/2006"}

// Feeds is the content of feeds.yaml.
type Feeds struct {
	Feeds map[string]Feed `yaml:"feeds"`

	bySource map[record.Source]Feed
}

// Feed describes how one source's export is located and read.
type Feed struct {
	File           string            `yaml:"file"`
	LookbackMonths int               `yaml:"lookback_months"`
	KeyColumn      string            `yaml:"key_column"`
	NumericKey     bool              `yaml:"numeric_key"`
	DateLayouts    []string          `yaml:"date_layouts"`
	Sentinels      []string          `yaml:"sentinels"`
	Aliases        map[string]string `yaml:"aliases"`
}

// LoadFeeds reads and validates a feeds file.
func LoadFeeds(path string) (*Feeds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}
	return ParseFeeds(data)
}

// ParseFeeds decodes and validates feeds YAML.
func ParseFeeds(data []byte) (*Feeds, error) {
	var f Feeds
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every feed and indexes them by source.
func (f *Feeds) Validate() error {
	if len(f.Feeds) == 0 {
		return ErrNoFeeds
	}
	f.bySource = make(map[record.Source]Feed, len(f.Feeds))
	for name, feed := range f.Feeds {
		src, err := record.ParseSource(name)
		if err != nil {
			return fmt.Errorf("feed %q: %w", name, ErrUnknownFeedSource)
		}
		if err := feed.validate(); err != nil {
			return fmt.Errorf("feed %q: %w", name, err)
		}
		if len(feed.DateLayouts) == 0 {
			feed.DateLayouts = defaultDateLayouts
		}
		feed.KeyColumn = normalizeHeader(feed.KeyColumn)
		aliases := make(map[string]string, len(feed.Aliases))
		for from, to := range feed.Aliases {
			aliases[normalizeHeader(from)] = normalizeHeader(to)
		}
		feed.Aliases = aliases
		f.bySource[src] = feed
	}
	return nil
}

func (f Feed) validate() error {
	if strings.TrimSpace(f.File) == "" {
		return ErrFeedMissingFile
	}
	if strings.TrimSpace(f.KeyColumn) == "" {
		return ErrFeedMissingKey
	}
	if f.LookbackMonths < 0 || f.LookbackMonths > 24 {
		return ErrInvalidLookback
	}
	if f.LookbackMonths > 0 && !strings.Contains(f.File, MonthToken) {
		return ErrLookbackNeedsToken
	}
	for _, l := range f.DateLayouts {
		if strings.TrimSpace(l) == "" {
			return ErrInvalidDateLayout
		}
	}
	return nil
}

// For returns the feed of src.
func (f *Feeds) For(src record.Source) (Feed, error) {
	feed, ok := f.bySource[src]
	if !ok {
		return Feed{}, fmt.Errorf("%w: %s", ErrFeedNotConfigured, src)
	}
	return feed, nil
}
