package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/viant/sqlite-kd/geo"
)

// SQLiteStore keeps point records in a SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithTable selects the point table; the default is DefaultTable.
func WithTable(name string) Option {
	return func(s *SQLiteStore) { s.table = name }
}

// NewSQLiteStore creates a SQLite-backed Store and ensures its table exists.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	s := &SQLiteStore{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	if err := EnsureSchema(db, s.table); err != nil {
		return nil, err
	}
	return s, nil
}

// Table returns the point table name.
func (s *SQLiteStore) Table() string { return s.table }

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// AddPoints inserts records in one transaction. Records without an ID get a
// random UUID. Identical coordinates may be stored under different IDs; the
// index keeps one copy.
func (s *SQLiteStore) AddPoints(ctx context.Context, dataset string, records []Record) ([]string, error) {
	if dataset == "" {
		return nil, ErrDatasetRequired
	}
	if len(records) == 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s(dataset_id, id, x, y, label) VALUES(?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.Point.IsNaN() {
			return nil, fmt.Errorf("store: record %q has NaN coordinates", r.ID)
		}
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, dataset, id, r.Point.X, r.Point.Y, r.Label); err != nil {
			return nil, fmt.Errorf("store: insert %q: %w", id, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Points returns the records of dataset ordered by rowid.
func (s *SQLiteStore) Points(ctx context.Context, dataset string) ([]Record, error) {
	if dataset == "" {
		return nil, ErrDatasetRequired
	}
	q := fmt.Sprintf(`SELECT rowid, id, x, y, COALESCE(label, '') FROM %s WHERE dataset_id = ? ORDER BY rowid`, s.table)
	return s.query(ctx, dataset, q, dataset)
}

// Lookup returns the records stored at exactly p.
func (s *SQLiteStore) Lookup(ctx context.Context, dataset string, p geo.Point) ([]Record, error) {
	if dataset == "" {
		return nil, ErrDatasetRequired
	}
	q := fmt.Sprintf(`SELECT rowid, id, x, y, COALESCE(label, '') FROM %s WHERE dataset_id = ? AND x = ? AND y = ? ORDER BY rowid`, s.table)
	return s.query(ctx, dataset, q, dataset, p.X, p.Y)
}

// RangeSQL filters dataset with the kd_rect_contains SQL function. It scans
// the whole dataset and serves as a reference for the tree's Range; the
// engine functions must be registered before the connection was opened.
func (s *SQLiteStore) RangeSQL(ctx context.Context, dataset string, r geo.Rect) ([]Record, error) {
	if dataset == "" {
		return nil, ErrDatasetRequired
	}
	q := fmt.Sprintf(`SELECT rowid, id, x, y, COALESCE(label, '') FROM %s WHERE dataset_id = ? AND kd_rect_contains(?, ?, ?, ?, x, y) = 1 ORDER BY rowid`, s.table)
	return s.query(ctx, dataset, q, dataset, r.XMin, r.YMin, r.XMax, r.YMax)
}

func (s *SQLiteStore) query(ctx context.Context, dataset, q string, args ...interface{}) ([]Record, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r := Record{Dataset: dataset}
		if err := rows.Scan(&r.Rowid, &r.ID, &r.Point.X, &r.Point.Y, &r.Label); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of records in dataset.
func (s *SQLiteStore) Count(ctx context.Context, dataset string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE dataset_id = ?`, s.table), dataset).Scan(&n)
	return n, err
}

// Datasets returns the distinct dataset identifiers.
func (s *SQLiteStore) Datasets(ctx context.Context) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT dataset_id FROM %s ORDER BY dataset_id`, s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ds string
		if err := rows.Scan(&ds); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// Remove deletes a record by ID.
func (s *SQLiteStore) Remove(ctx context.Context, dataset, id string) error {
	if dataset == "" {
		return ErrDatasetRequired
	}
	if id == "" {
		return fmt.Errorf("store: Remove called with empty id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE dataset_id = ? AND id = ?`, s.table), dataset, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, dataset, id)
	}
	return nil
}

// Ensure SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)
