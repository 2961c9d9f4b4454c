package subscriber

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Preference is one subscriber's interest rule set. Jurisdictions are kept raw; they are
// normalized only at match time.
type Preference struct {
	Email         string
	Jurisdictions []string
	Categories    []string
	UpdatedAt     time.Time
}

// Blob is the JSON document stored in user_email_preferences.preferences.
type Blob struct {
	States     []string `json:"states"`
	Categories []string `json:"categories"`
}

// RawPreference is a stored row before its blob has been decoded.
type RawPreference struct {
	Email     string
	Blob      []byte
	UpdatedAt time.Time
}

// Decode parses the stored blob. Blank entries are dropped and categories upper-cased.
func Decode(raw RawPreference) (*Preference, error) {
	email := strings.TrimSpace(raw.Email)
	if email == "" {
		return nil, fmt.Errorf("preference row has no email")
	}
	var b Blob
	if err := json.Unmarshal(raw.Blob, &b); err != nil {
		return nil, fmt.Errorf("invalid preferences for %s: %w", email, err)
	}
	return &Preference{
		Email:         email,
		Jurisdictions: compact(b.States, false),
		Categories:    compact(b.Categories, true),
		UpdatedAt:     raw.UpdatedAt,
	}, nil
}

// Encode renders the preference as a stored blob.
func (p *Preference) Encode() ([]byte, error) {
	return json.Marshal(Blob{
		States:     compact(p.Jurisdictions, false),
		Categories: compact(p.Categories, true),
	})
}

func compact(values []string, upper bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if upper {
			v = strings.ToUpper(v)
		}
		out = append(out, v)
	}
	return out
}
