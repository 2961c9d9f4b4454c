package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medirate_alerts/internal/domain/subscriber"
)

var ErrSubscriberAlreadyExists = fmt.Errorf("subscriber with this email already exists")

// AdminService manages subscriber preferences on behalf of the operator.
type AdminService struct {
	prefs           subscriber.Repository
	adminTelegramID int64
}

func NewAdminService(prefs subscriber.Repository, adminID int64) *AdminService {
	return &AdminService{
		prefs:           prefs,
		adminTelegramID: adminID,
	}
}

// IsAdmin reports whether userID may run admin operations.
func (s *AdminService) IsAdmin(userID int64) bool {
	return s.adminTelegramID != 0 && userID == s.adminTelegramID
}

// AddSubscriber stores a new subscriber with the given states and categories.
func (s *AdminService) AddSubscriber(ctx context.Context, performingAdminID int64, email string, states, categories []string) (*subscriber.Preference, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	p, err := newPreference(email, states, categories)
	if err != nil {
		return nil, err
	}

	_, err = s.prefs.GetByEmail(ctx, p.Email)
	if err == nil {
		return nil, ErrSubscriberAlreadyExists
	}
	if !errors.Is(err, subscriber.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing subscriber: %w", err)
	}

	if err := s.prefs.Create(ctx, p); err != nil {
		if errors.Is(err, subscriber.ErrDuplicate) {
			return nil, ErrSubscriberAlreadyExists
		}
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}
	return p, nil
}

// UpdateSubscriber replaces the states and categories of an existing subscriber.
func (s *AdminService) UpdateSubscriber(ctx context.Context, performingAdminID int64, email string, states, categories []string) (*subscriber.Preference, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	p, err := newPreference(email, states, categories)
	if err != nil {
		return nil, err
	}
	if err := s.prefs.Update(ctx, p); err != nil {
		if errors.Is(err, subscriber.ErrNotFound) {
			return nil, subscriber.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update subscriber: %w", err)
	}
	return p, nil
}

// RemoveSubscriber deletes a subscriber and their preferences.
func (s *AdminService) RemoveSubscriber(ctx context.Context, performingAdminID int64, email string) error {
	if !s.IsAdmin(performingAdminID) {
		return ErrAdminNotAuthorized
	}
	if err := s.prefs.Delete(ctx, strings.TrimSpace(email)); err != nil {
		if errors.Is(err, subscriber.ErrNotFound) {
			return subscriber.ErrNotFound
		}
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	return nil
}

// ListSubscribers returns the decodable subscribers and the number of rows whose
// preferences could not be decoded.
func (s *AdminService) ListSubscribers(ctx context.Context, performingAdminID int64) ([]*subscriber.Preference, int, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, 0, ErrAdminNotAuthorized
	}
	raws, err := s.prefs.ListWithPreferences(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscribers: %w", err)
	}
	var (
		out     []*subscriber.Preference
		invalid int
	)
	for _, raw := range raws {
		p, err := subscriber.Decode(raw)
		if err != nil {
			invalid++
			continue
		}
		out = append(out, p)
	}
	return out, invalid, nil
}

func newPreference(email string, states, categories []string) (*subscriber.Preference, error) {
	p := &subscriber.Preference{
		Email:         strings.ToLower(strings.TrimSpace(email)),
		Jurisdictions: compactList(states),
		Categories:    compactList(categories),
	}
	if !strings.Contains(p.Email, "@") || len(p.Jurisdictions) == 0 || len(p.Categories) == 0 {
		return nil, ErrInvalidSubscriber
	}
	for i, c := range p.Categories {
		p.Categories[i] = strings.ToUpper(c)
	}
	return p, nil
}

func compactList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
