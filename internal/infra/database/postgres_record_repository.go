package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"medirate_alerts/internal/domain/record"
)

// recordTable maps a source onto its table. Column names come only from the fixed
// sets in the record package; nothing from a feed ever reaches SQL text.
type recordTable struct {
	name    string
	key     string // natural key column
	columns []record.Column
}

var recordTables = map[record.Source]recordTable{
	record.SourceBill:          {name: "bill_track_50", key: "url", columns: record.BillColumns},
	record.SourceProviderAlert: {name: "provider_alerts", key: "id", columns: record.AlertColumns},
}

func tableFor(src record.Source) (recordTable, error) {
	t, ok := recordTables[src]
	if !ok {
		return recordTable{}, fmt.Errorf("no table for record source %q", src)
	}
	return t, nil
}

func (t recordTable) has(c record.Column) bool {
	for _, own := range t.columns {
		if own.Name == c.Name {
			return true
		}
	}
	return false
}

func (t recordTable) selectList() string {
	names := make([]string, 0, len(t.columns)+3)
	names = append(names, t.key+"::text")
	for _, c := range t.columns {
		names = append(names, c.Name)
	}
	names = append(names, "is_new", "date_extracted")
	return strings.Join(names, ", ")
}

type PostgresRecordRepository struct {
	db *sql.DB
}

func NewPostgresRecordRepository(db *sql.DB) *PostgresRecordRepository {
	return &PostgresRecordRepository{db: db}
}

var _ record.Repository = (*PostgresRecordRepository)(nil)

func (r *PostgresRecordRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRecordRepository) List(ctx context.Context, src record.Source) ([]*record.Record, error) {
	return r.query(ctx, src, "")
}

func (r *PostgresRecordRepository) ListNew(ctx context.Context) ([]*record.Record, error) {
	var out []*record.Record
	for _, src := range record.Sources() {
		rows, err := r.query(ctx, src, "WHERE is_new")
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *PostgresRecordRepository) ListUncategorized(ctx context.Context, src record.Source) ([]*record.Record, error) {
	conds := make([]string, len(record.CategoryColumns))
	for i, c := range record.CategoryColumns {
		conds[i] = fmt.Sprintf("COALESCE(TRIM(%s), '') = ''", c.Name)
	}
	return r.query(ctx, src, "WHERE "+strings.Join(conds, " AND "))
}

func (r *PostgresRecordRepository) query(ctx context.Context, src record.Source, where string) ([]*record.Record, error) {
	t, err := tableFor(src)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY row_id`, t.selectList(), t.name, where)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing %s rows: %w", t.name, err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows, src, t)
		if err != nil {
			return nil, fmt.Errorf("error scanning %s row: %w", t.name, err)
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", t.name, err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows, src record.Source, t recordTable) (*record.Record, error) {
	var (
		key       sql.NullString
		isNew     bool
		extracted time.Time
	)
	texts := make([]sql.NullString, len(t.columns))
	dates := make([]sql.NullTime, len(t.columns))

	dest := make([]any, 0, len(t.columns)+3)
	dest = append(dest, &key)
	for i, c := range t.columns {
		if c.Kind == record.KindDate {
			dest = append(dest, &dates[i])
		} else {
			dest = append(dest, &texts[i])
		}
	}
	dest = append(dest, &isNew, &extracted)

	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	var rec *record.Record
	if src == record.SourceBill {
		rec = record.NewBill(key.String)
	} else {
		rec = record.NewAlert(key.String)
	}
	rec.IsNew = isNew
	rec.ExtractedAt = extracted.UTC()
	for i, c := range t.columns {
		if c.Kind == record.KindDate {
			if dates[i].Valid {
				d := dates[i].Time
				c.SetDate(rec, &d)
			}
			continue
		}
		c.SetText(rec, texts[i].String)
	}
	return rec, nil
}

func (r *PostgresRecordRepository) Insert(ctx context.Context, rec *record.Record) error {
	t, err := tableFor(rec.Source)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(t.columns)+3)
	args := make([]any, 0, len(t.columns)+3)
	names = append(names, t.key)
	args = append(args, rec.NaturalKey)
	for _, c := range t.columns {
		names = append(names, c.Name)
		args = append(args, c.Value(rec))
	}
	names = append(names, "is_new", "date_extracted")
	args = append(args, rec.IsNew, rec.ExtractedAt)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, t.name, strings.Join(names, ", "), placeholders(1, len(args)))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error inserting into %s: %w", t.name, err)
	}
	return nil
}

// UpdateColumns writes only cols, keyed by natural key. It never touches is_new or
// date_extracted.
func (r *PostgresRecordRepository) UpdateColumns(ctx context.Context, rec *record.Record, cols []record.Column) error {
	if len(cols) == 0 {
		return nil
	}
	t, err := tableFor(rec.Source)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		if !t.has(c) {
			return fmt.Errorf("column %s is not updatable on %s", c.Name, t.name)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, i+1))
		args = append(args, c.Value(rec))
	}
	args = append(args, rec.NaturalKey)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d`, t.name, strings.Join(sets, ", "), t.key, len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating %s: %w", t.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no %s row with %s %q", t.name, t.key, rec.NaturalKey)
	}
	return nil
}

// ResetNewFlags clears is_new in both tables in one transaction.
func (r *PostgresRecordRepository) ResetNewFlags(ctx context.Context) (int64, error) {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for flag reset: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	var total int64
	for _, src := range record.Sources() {
		t, _ := tableFor(src)
		res, err := txn.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET is_new = FALSE WHERE is_new`, t.name))
		if err != nil {
			return 0, fmt.Errorf("error resetting is_new on %s: %w", t.name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("error reading reset count on %s: %w", t.name, err)
		}
		total += n
	}

	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit flag reset: %w", err)
	}
	return total, nil
}

// PurgeDuplicates keeps the most recently extracted row per natural key; the highest
// row_id breaks ties.
func (r *PostgresRecordRepository) PurgeDuplicates(ctx context.Context, src record.Source) (int64, error) {
	t, err := tableFor(src)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %[1]s WHERE row_id IN (
               SELECT row_id FROM (
                   SELECT row_id, ROW_NUMBER() OVER (PARTITION BY %[2]s ORDER BY date_extracted DESC, row_id DESC) AS rnum
                   FROM %[1]s
               ) ranked WHERE ranked.rnum > 1)`, t.name, t.key)

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("error purging duplicates from %s: %w", t.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading purge count on %s: %w", t.name, err)
	}
	return n, nil
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}
