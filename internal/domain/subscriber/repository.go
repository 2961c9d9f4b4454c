package subscriber

import (
	"context"
	"fmt"
)

var (
	ErrNotFound  = fmt.Errorf("subscriber not found")
	ErrDuplicate = fmt.Errorf("subscriber with this email already exists")
)

// Repository defines the operations for persisting and retrieving subscriber preferences.
// Emails are matched case-insensitively.
type Repository interface {
	// ListWithPreferences returns every row whose preference blob is not null.
	ListWithPreferences(ctx context.Context) ([]RawPreference, error)
	GetByEmail(ctx context.Context, email string) (*Preference, error) // ErrNotFound when absent
	Create(ctx context.Context, p *Preference) error                   // ErrDuplicate when present
	Update(ctx context.Context, p *Preference) error                   // ErrNotFound when absent
	Delete(ctx context.Context, email string) error                    // ErrNotFound when absent
}
