package app

import (
	"strings"

	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/domain/subscriber"
	"medirate_alerts/internal/jurisdiction"

	"github.com/sirupsen/logrus"
)

// MatchReport is the outcome of matching new records against stored preferences.
type MatchReport struct {
	// Matches maps subscriber email to relevant records in retrieval order.
	// Subscribers without relevant records are absent.
	Matches map[string][]*record.Record
	// Recipients lists the keys of Matches in preference order.
	Recipients []string
	// Excluded holds subscribers dropped for malformed or empty preferences.
	Excluded []*MatchConfigError
}

// Matcher selects, per subscriber, the new records matching both their states and
// their categories.
type Matcher struct {
	log *logrus.Entry
}

func NewMatcher(log *logrus.Entry) *Matcher {
	return &Matcher{log: log}
}

// compiledPreference is a preference with its dimensions expanded for set lookups.
type compiledPreference struct {
	email         string
	jurisdictions jurisdiction.Set
	categories    map[string]struct{}
}

// Match returns the relevant records per subscriber. A subscriber with no states or no
// categories matches nothing.
func (m *Matcher) Match(records []*record.Record, prefs []*subscriber.Preference) map[string][]*record.Record {
	compiled := make([]compiledPreference, 0, len(prefs))
	for _, p := range prefs {
		if cp, err := compile(p); err == nil {
			compiled = append(compiled, cp)
		}
	}
	matches, _ := matchCompiled(records, compiled)
	return matches
}

// MatchStored decodes stored preference rows and matches them. Rows that fail to decode
// or carry an empty dimension are excluded and reported, never failing the batch.
func (m *Matcher) MatchStored(records []*record.Record, raws []subscriber.RawPreference) *MatchReport {
	report := &MatchReport{}
	compiled := make([]compiledPreference, 0, len(raws))
	for _, raw := range raws {
		p, err := subscriber.Decode(raw)
		if err != nil {
			report.Excluded = append(report.Excluded, &MatchConfigError{Email: strings.TrimSpace(raw.Email), Reason: "undecodable preferences", Err: err})
			continue
		}
		cp, err := compile(p)
		if err != nil {
			report.Excluded = append(report.Excluded, err.(*MatchConfigError))
			continue
		}
		compiled = append(compiled, cp)
	}
	for _, ex := range report.Excluded {
		m.log.WithField("email", ex.Email).WithError(ex).Warn("Subscriber excluded from matching")
	}

	report.Matches, report.Recipients = matchCompiled(records, compiled)
	m.log.WithFields(logrus.Fields{
		"records":     len(records),
		"subscribers": len(compiled),
		"recipients":  len(report.Recipients),
		"excluded":    len(report.Excluded),
	}).Info("Preferences matched")
	return report
}

func compile(p *subscriber.Preference) (compiledPreference, error) {
	cp := compiledPreference{
		email:         p.Email,
		jurisdictions: jurisdiction.NormalizeAll(p.Jurisdictions),
		categories:    make(map[string]struct{}, len(p.Categories)),
	}
	for _, c := range p.Categories {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			cp.categories[c] = struct{}{}
		}
	}
	if len(cp.jurisdictions) == 0 {
		return cp, &MatchConfigError{Email: p.Email, Reason: "no states selected"}
	}
	if len(cp.categories) == 0 {
		return cp, &MatchConfigError{Email: p.Email, Reason: "no categories selected"}
	}
	return cp, nil
}

func matchCompiled(records []*record.Record, prefs []compiledPreference) (map[string][]*record.Record, []string) {
	states := make([]jurisdiction.Set, len(records))
	categories := make([]map[string]struct{}, len(records))
	for i, r := range records {
		states[i] = jurisdiction.Normalize(r.Jurisdiction)
		categories[i] = r.Categories.Set()
	}

	matches := make(map[string][]*record.Record)
	var order []string
	for _, p := range prefs {
		for i, r := range records {
			if !p.jurisdictions.Intersects(states[i]) || !intersects(p.categories, categories[i]) {
				continue
			}
			if _, ok := matches[p.email]; !ok {
				order = append(order, p.email)
			}
			matches[p.email] = append(matches[p.email], r)
		}
	}
	return matches, order
}

func intersects(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
