package testutil

import (
	"context"
	"strings"
	"sync"

	"medirate_alerts/internal/domain/subscriber"
)

// PreferenceStore is an in-memory subscriber.Repository keeping raw blobs in insertion order.
type PreferenceStore struct {
	mu   sync.Mutex
	rows []subscriber.RawPreference

	ListErr error
}

var _ subscriber.Repository = (*PreferenceStore)(nil)

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{}
}

// Add stores a preference built from states and categories.
func (s *PreferenceStore) Add(email string, states, categories []string) {
	p := &subscriber.Preference{Email: email, Jurisdictions: states, Categories: categories}
	blob, _ := p.Encode()
	s.AddRaw(email, string(blob))
}

// AddRaw stores an arbitrary blob, including malformed ones.
func (s *PreferenceStore) AddRaw(email, blob string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, subscriber.RawPreference{Email: email, Blob: []byte(blob)})
}

func (s *PreferenceStore) ListWithPreferences(ctx context.Context) ([]subscriber.RawPreference, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subscriber.RawPreference, 0, len(s.rows))
	for _, r := range s.rows {
		if r.Blob != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *PreferenceStore) GetByEmail(ctx context.Context, email string) (*subscriber.Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(email); i >= 0 {
		return subscriber.Decode(s.rows[i])
	}
	return nil, subscriber.ErrNotFound
}

func (s *PreferenceStore) Create(ctx context.Context, p *subscriber.Preference) error {
	blob, err := p.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(p.Email) >= 0 {
		return subscriber.ErrDuplicate
	}
	s.rows = append(s.rows, subscriber.RawPreference{Email: p.Email, Blob: blob})
	return nil
}

func (s *PreferenceStore) Update(ctx context.Context, p *subscriber.Preference) error {
	blob, err := p.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(p.Email)
	if i < 0 {
		return subscriber.ErrNotFound
	}
	s.rows[i].Blob = blob
	return nil
}

func (s *PreferenceStore) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(email)
	if i < 0 {
		return subscriber.ErrNotFound
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

func (s *PreferenceStore) index(email string) int {
	email = strings.TrimSpace(email)
	for i, r := range s.rows {
		if strings.EqualFold(r.Email, email) {
			return i
		}
	}
	return -1
}
