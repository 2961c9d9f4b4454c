package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"medirate_alerts/internal/domain/subscriber"

	"github.com/lib/pq"
)

// Custom errors
var (
	ErrSubscriberNotFound  = subscriber.ErrNotFound
	ErrDuplicateSubscriber = subscriber.ErrDuplicate
)

const uniqueViolation = "23505"

type PostgresPreferenceRepository struct {
	db *sql.DB
}

func NewPostgresPreferenceRepository(db *sql.DB) *PostgresPreferenceRepository {
	return &PostgresPreferenceRepository{db: db}
}

var _ subscriber.Repository = (*PostgresPreferenceRepository)(nil)

func (r *PostgresPreferenceRepository) ListWithPreferences(ctx context.Context) ([]subscriber.RawPreference, error) {
	query := `SELECT user_email, preferences::text, updated_at
               FROM user_email_preferences
               WHERE preferences IS NOT NULL
               ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing subscriber preferences: %w", err)
	}
	defer rows.Close()

	var out []subscriber.RawPreference
	for rows.Next() {
		var (
			raw  subscriber.RawPreference
			blob string
		)
		if err := rows.Scan(&raw.Email, &blob, &raw.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning subscriber preference: %w", err)
		}
		raw.Blob = []byte(blob)
		out = append(out, raw)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriber preferences: %w", err)
	}
	return out, nil
}

func (r *PostgresPreferenceRepository) GetByEmail(ctx context.Context, email string) (*subscriber.Preference, error) {
	query := `SELECT user_email, COALESCE(preferences::text, '{}'), updated_at
               FROM user_email_preferences WHERE LOWER(user_email) = LOWER($1)`
	var (
		raw  subscriber.RawPreference
		blob string
	)
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)).Scan(&raw.Email, &blob, &raw.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("error getting subscriber by email: %w", err)
	}
	raw.Blob = []byte(blob)
	return subscriber.Decode(raw)
}

func (r *PostgresPreferenceRepository) Create(ctx context.Context, p *subscriber.Preference) error {
	blob, err := p.Encode()
	if err != nil {
		return fmt.Errorf("error encoding preferences: %w", err)
	}
	query := `INSERT INTO user_email_preferences (user_email, preferences, updated_at)
               VALUES ($1, $2::jsonb, NOW())
               RETURNING updated_at`
	err = r.db.QueryRowContext(ctx, query, p.Email, string(blob)).Scan(&p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateSubscriber
		}
		return fmt.Errorf("error creating subscriber: %w", err)
	}
	return nil
}

func (r *PostgresPreferenceRepository) Update(ctx context.Context, p *subscriber.Preference) error {
	blob, err := p.Encode()
	if err != nil {
		return fmt.Errorf("error encoding preferences: %w", err)
	}
	query := `UPDATE user_email_preferences
               SET preferences = $1::jsonb, updated_at = NOW()
               WHERE LOWER(user_email) = LOWER($2)
               RETURNING updated_at`
	err = r.db.QueryRowContext(ctx, query, string(blob), p.Email).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSubscriberNotFound
		}
		return fmt.Errorf("error updating subscriber: %w", err)
	}
	return nil
}

func (r *PostgresPreferenceRepository) Delete(ctx context.Context, email string) error {
	query := `DELETE FROM user_email_preferences WHERE LOWER(user_email) = LOWER($1)`
	res, err := r.db.ExecContext(ctx, query, strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("error deleting subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking deleted rows: %w", err)
	}
	if n == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}
