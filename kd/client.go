package kd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/store"
)

// Index is a Go handle over one dataset of a kd virtual table. Writes go to
// the shadow table, whose triggers invalidate the cached index; reads run
// MATCH queries against the virtual table.
type Index struct {
	DB          *sql.DB
	VirtualName string
	ShadowName  string
	Column      string
	DatasetID   string
}

// Match is a single query hit.
type Match struct {
	ID    string
	Point geo.Point
	Label string
	// Distance to the query point; NaN for range queries.
	Distance float64
}

// NewIndex constructs an Index for a kd virtual table declared with column
// (DefaultColumn when empty) and ensures its shadow table exists.
func NewIndex(ctx context.Context, db *sql.DB, virtualTable, column, datasetID string) (*Index, error) {
	if db == nil {
		return nil, store.ErrNilDB
	}
	if datasetID == "" {
		return nil, store.ErrDatasetRequired
	}
	if !store.ValidTable(virtualTable) {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidTable, virtualTable)
	}
	if column == "" {
		column = DefaultColumn
	}
	if err := EnsureShadow(ctx, db, virtualTable); err != nil {
		return nil, err
	}
	return &Index{
		DB:          db,
		VirtualName: virtualTable,
		ShadowName:  ShadowTableName(virtualTable),
		Column:      column,
		DatasetID:   datasetID,
	}, nil
}

// Upsert inserts or replaces records in the shadow table. Records must carry
// an ID.
func (ix *Index) Upsert(ctx context.Context, records []store.Record) error {
	stmt := fmt.Sprintf(`
INSERT INTO %s(dataset_id, id, x, y, label)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(dataset_id, id) DO UPDATE SET
  x = excluded.x,
  y = excluded.y,
  label = excluded.label`, ix.ShadowName)
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("kd: Upsert requires record IDs")
		}
		if r.Point.IsNaN() {
			return fmt.Errorf("kd: record %q has NaN coordinates", r.ID)
		}
		if _, err := ix.DB.ExecContext(ctx, stmt, ix.DatasetID, r.ID, r.Point.X, r.Point.Y, r.Label); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes records by ID.
func (ix *Index) Delete(ctx context.Context, ids []string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE dataset_id = ? AND id = ?", ix.ShadowName)
	for _, id := range ids {
		if _, err := ix.DB.ExecContext(ctx, stmt, ix.DatasetID, id); err != nil {
			return err
		}
	}
	return nil
}

// Nearest returns the records at the point closest to p; empty when the
// dataset has no points.
func (ix *Index) Nearest(ctx context.Context, p geo.Point) ([]Match, error) {
	return ix.Match(ctx, Query{Kind: QueryNearest, Point: p})
}

// KNearest returns the records at the k points closest to p by distance.
func (ix *Index) KNearest(ctx context.Context, p geo.Point, k int) ([]Match, error) {
	return ix.Match(ctx, Query{Kind: QueryKNN, Point: p, K: k})
}

// Within returns the records at most radius away from p by distance.
func (ix *Index) Within(ctx context.Context, p geo.Point, radius float64) ([]Match, error) {
	return ix.Match(ctx, Query{Kind: QueryWithin, Point: p, Radius: radius})
}

// Range returns the records inside r in insertion order.
func (ix *Index) Range(ctx context.Context, r geo.Rect) ([]Match, error) {
	return ix.Match(ctx, Query{Kind: QueryRange, Rect: r})
}

// Match runs q against the virtual table.
func (ix *Index) Match(ctx context.Context, q Query) ([]Match, error) {
	query := fmt.Sprintf("SELECT %s, x, y, label, distance FROM %s WHERE dataset_id = ? AND %s MATCH ?",
		ix.Column, ix.VirtualName, ix.Column)
	rows, err := ix.DB.QueryContext(ctx, query, ix.DatasetID, q.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var (
			m        Match
			label    sql.NullString
			distance sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.Point.X, &m.Point.Y, &label, &distance); err != nil {
			return nil, err
		}
		m.Label = label.String
		m.Distance = nanIfNull(distance)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Nearest runs a nearest query against dataset of a kd virtual table declared
// with DefaultColumn.
func Nearest(ctx context.Context, db *sql.DB, virtualTable, dataset string, p geo.Point) ([]Match, error) {
	ix, err := NewIndex(ctx, db, virtualTable, "", dataset)
	if err != nil {
		return nil, err
	}
	return ix.Nearest(ctx, p)
}

// Range runs a range query against dataset of a kd virtual table declared
// with DefaultColumn.
func Range(ctx context.Context, db *sql.DB, virtualTable, dataset string, r geo.Rect) ([]Match, error) {
	ix, err := NewIndex(ctx, db, virtualTable, "", dataset)
	if err != nil {
		return nil, err
	}
	return ix.Range(ctx, r)
}
