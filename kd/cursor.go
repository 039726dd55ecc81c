package kd

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/store"
	"modernc.org/sqlite/vtab"
)

type row struct {
	record   store.Record
	distance *float64
}

// Cursor scans results from a kd table.
type Cursor struct {
	table   *Table
	rows    []row
	pos     int
	dataset string
}

// Filter computes the result set based on idxNum/vals.
func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows = nil
	c.pos = 0
	c.dataset = ""
	if c.table == nil || c.table.db == nil {
		return nil
	}
	if len(vals) == 0 || vals[0] == nil {
		return fmt.Errorf("kd: dataset_id argument is required")
	}
	dataset, err := asString(vals[0])
	if err != nil {
		return err
	}
	c.dataset = dataset
	ctx := context.Background()
	b, err := c.table.binding(ctx)
	if err != nil {
		return err
	}
	switch idxNum {
	case idxDatasetScan:
		records, err := b.store.Points(ctx, dataset)
		if err != nil {
			return err
		}
		for _, r := range records {
			c.rows = append(c.rows, row{record: r})
		}
		return nil
	case idxDatasetMatch:
		if len(vals) < 2 || vals[1] == nil {
			return fmt.Errorf("kd: dataset_id and MATCH arguments are required")
		}
		q, err := decodeMatchArg(vals[1])
		if err != nil {
			return err
		}
		c.rows, err = c.table.run(ctx, b, dataset, q)
		return err
	default:
		return fmt.Errorf("kd: unsupported query plan")
	}
}

// run answers q from the dataset index and expands every matching point to
// the shadow rows stored at it.
func (t *Table) run(ctx context.Context, b *binding, dataset string, q Query) ([]row, error) {
	type hit struct {
		point    geo.Point
		distance *float64
	}
	var hits []hit
	dist := func(p geo.Point) *float64 {
		d := p.DistanceTo(q.Point)
		return &d
	}
	switch q.Kind {
	case QueryNearest:
		p, ok, err := b.catalog.Nearest(ctx, dataset, q.Point)
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, hit{point: p, distance: dist(p)})
		}
	case QueryKNN:
		neighbors, err := b.catalog.KNearest(ctx, dataset, q.Point, q.K)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			d := n.Distance
			hits = append(hits, hit{point: n.Point, distance: &d})
		}
	case QueryWithin:
		box := geo.Rect{XMin: q.Point.X - q.Radius, YMin: q.Point.Y - q.Radius, XMax: q.Point.X + q.Radius, YMax: q.Point.Y + q.Radius}
		points, err := b.catalog.Range(ctx, dataset, box)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			if d := dist(p); *d <= q.Radius {
				hits = append(hits, hit{point: p, distance: d})
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return *hits[i].distance < *hits[j].distance })
	case QueryRange:
		points, err := b.catalog.Range(ctx, dataset, q.Rect)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			hits = append(hits, hit{point: p})
		}
	}
	var out []row
	for _, h := range hits {
		records, err := b.store.Lookup(ctx, dataset, h.point)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			out = append(out, row{record: r, distance: h.distance})
		}
	}
	if q.Kind == QueryRange {
		sort.Slice(out, func(i, j int) bool { return out[i].record.Rowid < out[j].record.Rowid })
	}
	return out, nil
}

// Next advances the cursor.
func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

// Eof reports end-of-rows.
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

// Column returns the value of a column in the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("kd: Column out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	r := c.rows[c.pos]
	switch col {
	case colDataset:
		return c.dataset, nil
	case colID:
		return r.record.ID, nil
	case colX:
		return r.record.Point.X, nil
	case colY:
		return r.record.Point.Y, nil
	case colLabel:
		return r.record.Label, nil
	case colDistance:
		if r.distance == nil || math.IsNaN(*r.distance) {
			return nil, nil
		}
		return *r.distance, nil
	}
	return nil, fmt.Errorf("kd: unsupported column %d", col)
}

// Rowid returns the current shadow rowid.
func (c *Cursor) Rowid() (int64, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return 0, fmt.Errorf("kd: Rowid out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	return c.rows[c.pos].record.Rowid, nil
}

// Close releases resources.
func (c *Cursor) Close() error { c.rows = nil; c.pos = 0; return nil }
