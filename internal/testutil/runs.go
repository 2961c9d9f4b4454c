package testutil

import (
	"context"
	"sync"
	"time"

	"medirate_alerts/internal/domain/cycle"
)

// RunStore is an in-memory cycle.RunRepository.
type RunStore struct {
	mu   sync.Mutex
	runs []cycle.Run

	SaveErr error
}

var _ cycle.RunRepository = (*RunStore)(nil)

func NewRunStore() *RunStore {
	return &RunStore{}
}

func (s *RunStore) Save(ctx context.Context, run cycle.Run) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *RunStore) GetByID(ctx context.Context, id string) (*cycle.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == id {
			run := r
			return &run, nil
		}
	}
	return nil, cycle.ErrRunNotFound
}

// ListRecent returns the newest runs first.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]cycle.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cycle.Run
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

func (s *RunStore) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == id {
			s.runs[i].DispatchedAt = &at
			return nil
		}
	}
	return cycle.ErrRunNotFound
}
