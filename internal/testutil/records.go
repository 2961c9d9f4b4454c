// Package testutil provides in-memory stand-ins for the stores and gateways so
// application code can be tested without Postgres or network access.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"medirate_alerts/internal/domain/record"
)

// ColumnUpdate records one partial update issued against the record store.
type ColumnUpdate struct {
	Source     record.Source
	NaturalKey string
	Columns    []string
}

// RecordStore is an in-memory record.Repository. Like the real table it does not
// enforce key uniqueness; PurgeDuplicates does.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordStore struct {
	mu   sync.Mutex
	rows map[record.Source][]*record.Record

	// Injected failures.
	PingErr   error
	ResetErr  error
	PurgeErr  error
	ListErr   error
	InsertErr map[string]error // by natural key
	UpdateErr map[string]error // by natural key

	Resets  int
	Inserts []string
	Updates []ColumnUpdate
}

var _ record.Repository = (*RecordStore)(nil)

func NewRecordStore() *RecordStore {
	return &RecordStore{
		rows:      make(map[record.Source][]*record.Record),
		InsertErr: make(map[string]error),
		UpdateErr: make(map[string]error),
	}
}

// Seed stores copies of rows as they are, including their is-new flags.
func (s *RecordStore) Seed(rows ...*record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.rows[r.Source] = append(s.rows[r.Source], r.Clone())
	}
}

// Rows returns copies of every stored row of src in storage order.
func (s *RecordStore) Rows(src record.Source) []*record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.rows[src])
}

// Get returns a copy of the first stored row with key, or nil.
func (s *RecordStore) Get(src record.Source, key string) *record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows[src] {
		if r.NaturalKey == key {
			return r.Clone()
		}
	}
	return nil
}

// NewKeys returns the sorted natural keys flagged new in src.
func (s *RecordStore) NewKeys(src record.Source) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, r := range s.rows[src] {
		if r.IsNew {
			keys = append(keys, r.NaturalKey)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *RecordStore) Ping(ctx context.Context) error {
	return s.PingErr
}

func (s *RecordStore) List(ctx context.Context, src record.Source) ([]*record.Record, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.Rows(src), nil
}

func (s *RecordStore) ListNew(ctx context.Context) ([]*record.Record, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*record.Record
	for _, src := range record.Sources() {
		for _, r := range s.rows[src] {
			if r.IsNew {
				out = append(out, r.Clone())
			}
		}
	}
	return out, nil
}

func (s *RecordStore) ListUncategorized(ctx context.Context, src record.Source) ([]*record.Record, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*record.Record
	for _, r := range s.rows[src] {
		if r.Categories.Empty() {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *RecordStore) Insert(ctx context.Context, r *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.InsertErr[r.NaturalKey]; err != nil {
		return err
	}
	s.rows[r.Source] = append(s.rows[r.Source], r.Clone())
	s.Inserts = append(s.Inserts, r.NaturalKey)
	return nil
}

func (s *RecordStore) UpdateColumns(ctx context.Context, r *record.Record, cols []record.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.UpdateErr[r.NaturalKey]; err != nil {
		return err
	}
	found := false
	for _, stored := range s.rows[r.Source] {
		if stored.NaturalKey != r.NaturalKey {
			continue
		}
		found = true
		for _, c := range cols {
			c.Copy(stored, r)
		}
	}
	if !found {
		return fmt.Errorf("no %s row with key %q", r.Source, r.NaturalKey)
	}
	s.Updates = append(s.Updates, ColumnUpdate{Source: r.Source, NaturalKey: r.NaturalKey, Columns: record.ColumnNames(cols)})
	return nil
}

func (s *RecordStore) ResetNewFlags(ctx context.Context) (int64, error) {
	if s.ResetErr != nil {
		return 0, s.ResetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resets++
	var n int64
	for _, rows := range s.rows {
		for _, r := range rows {
			if r.IsNew {
				r.IsNew = false
				n++
			}
		}
	}
	return n, nil
}

// PurgeDuplicates keeps the row with the latest ExtractedAt per key; on a tie the row
// stored last wins. Survivors keep their storage order.
func (s *RecordStore) PurgeDuplicates(ctx context.Context, src record.Source) (int64, error) {
	if s.PurgeErr != nil {
		return 0, s.PurgeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[src]
	keep := make(map[string]int, len(rows))
	for i, r := range rows {
		j, ok := keep[r.NaturalKey]
		if !ok || !r.ExtractedAt.Before(rows[j].ExtractedAt) {
			keep[r.NaturalKey] = i
		}
	}

	out := make([]*record.Record, 0, len(keep))
	for i, r := range rows {
		if keep[r.NaturalKey] == i {
			out = append(out, r)
		}
	}
	s.rows[src] = out
	return int64(len(rows) - len(out)), nil
}

func cloneAll(rows []*record.Record) []*record.Record {
	out := make([]*record.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
