// Package jurisdiction canonicalizes US state identifiers so that feeds and subscriber
// preferences can be compared regardless of whether they use codes or full names.
package jurisdiction

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownDisplayName is shown for records without a jurisdiction.
const UnknownDisplayName = "Unknown State"

var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "DC": "District of Columbia",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho", "IL": "Illinois",
	"IN": "Indiana", "IA": "Iowa", "KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana",
	"ME": "Maine", "MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma", "OR": "Oregon",
	"PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina", "SD": "South Dakota",
	"TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont", "VA": "Virginia",
	"WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
}

// upper-cased full name -> code
var stateCodes = func() map[string]string {
	m := make(map[string]string, len(stateNames))
	for code, name := range stateNames {
		m[strings.ToUpper(name)] = code
	}
	return m
}()

var titleCaser = cases.Title(language.English)

// Set holds the equivalent forms of one or more jurisdictions.
type Set map[string]struct{}

// Add inserts a form into the set.
func (s Set) Add(v string) {
	s[v] = struct{}{}
}

// Union adds every member of other to s.
func (s Set) Union(other Set) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// Has reports whether v is a member.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Intersects reports whether s and other share at least one form.
func (s Set) Intersects(other Set) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for v := range small {
		if _, ok := large[v]; ok {
			return true
		}
	}
	return false
}

// Normalize returns the equivalence set for a raw jurisdiction string. Known codes and
// full names expand to {CODE, FULL NAME}; anything else passes through upper-cased.
// Blank input yields an empty set.
func Normalize(raw string) Set {
	v := strings.ToUpper(strings.TrimSpace(raw))
	out := make(Set, 2)
	if v == "" {
		return out
	}
	out.Add(v)
	if name, ok := stateNames[v]; ok {
		out.Add(strings.ToUpper(name))
	} else if code, ok := stateCodes[v]; ok {
		out.Add(code)
	}
	return out
}

// NormalizeAll unions the equivalence sets of every raw value.
func NormalizeAll(raws []string) Set {
	out := make(Set)
	for _, raw := range raws {
		out.Union(Normalize(raw))
	}
	return out
}

// DisplayName renders a jurisdiction for humans: codes become full names, other
// values are title-cased.
func DisplayName(raw string) string {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return UnknownDisplayName
	}
	if name, ok := stateNames[v]; ok {
		return name
	}
	if code, ok := stateCodes[v]; ok {
		return stateNames[code]
	}
	return titleCaser.String(strings.ToLower(v))
}
