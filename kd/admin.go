package kd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"modernc.org/sqlite/vtab"

	"github.com/viant/sqlite-kd/catalog"
	"github.com/viant/sqlite-kd/store"
)

// AdminModule provides administrative operations via a virtual table.
// Usage:
//
//	CREATE VIRTUAL TABLE kd_admin USING kd_admin(op);
//	SELECT op FROM kd_admin WHERE op MATCH 'places'; -- rebuild every dataset
//
// Returns one row per dataset, op='reindexed:<dataset>:<size>'.
type AdminModule struct{ db *sql.DB }

// AdminTable is a kd_admin virtual table instance.
type AdminTable struct{ db *sql.DB }

// AdminCursor iterates kd_admin results.
type AdminCursor struct {
	table *AdminTable
	rows  []string
	pos   int
}

func (m *AdminModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

func (m *AdminModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("kd_admin: need at least 3 args")
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(op)", args[2])); err != nil {
		return nil, err
	}
	return &AdminTable{db: m.db}, nil
}

func (t *AdminTable) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		if c.Column == 0 && c.Op == vtab.OpMATCH {
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = 1
			break
		}
	}
	return nil
}

func (t *AdminTable) Open() (vtab.Cursor, error) { return &AdminCursor{table: t}, nil }
func (t *AdminTable) Disconnect() error            { return nil }
func (t *AdminTable) Destroy() error               { return nil }

func (c *AdminCursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows = nil
	c.pos = 0
	if idxNum != 1 || len(vals) == 0 || vals[0] == nil {
		return nil
	}
	name, ok := vals[0].(string)
	if !ok {
		return fmt.Errorf("kd_admin: MATCH expects a kd table name as TEXT")
	}
	rows, err := Reindex(context.Background(), c.table.db, name)
	if err != nil {
		return err
	}
	c.rows = rows
	return nil
}

func (c *AdminCursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

func (c *AdminCursor) Eof() bool { return c.pos >= len(c.rows) }

func (c *AdminCursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("kd_admin: Column out of range")
	}
	if col == 0 {
		return c.rows[c.pos], nil
	}
	return nil, nil
}

func (c *AdminCursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }
func (c *AdminCursor) Close() error          { c.rows = nil; c.pos = 0; return nil }

// Reindex rebuilds and persists the index of every dataset of a kd table.
// name is the virtual table name or its (optionally qualified) shadow name.
// When the table has not been queried in this process yet, snapshots are
// only deleted.
func Reindex(ctx context.Context, db *sql.DB, name string) ([]string, error) {
	shadow := strings.TrimSpace(name)
	if tableNameFromShadow(shadow) == "" {
		shadow = "main." + ShadowTableName(shadow)
	} else if !strings.Contains(shadow, ".") {
		shadow = "main." + shadow
	}
	if !store.ValidTable(shadow) {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidTable, name)
	}
	st, err := store.NewSQLiteStore(db, store.WithTable(shadow))
	if err != nil {
		return nil, err
	}
	snaps, err := store.NewSQLiteSnapshots(db, shadow)
	if err != nil {
		return nil, err
	}
	var cat *catalog.Catalog
	dbPath, err := resolveDbPath(ctx, db, "main")
	if err != nil {
		return nil, err
	}
	bindings.mu.Lock()
	if b := bindings.byKey[dbPath+"|"+shadow]; b != nil {
		cat = b.catalog
	}
	bindings.mu.Unlock()
	datasets, err := st.Datasets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		if err := snaps.DeleteSnapshot(ctx, ds); err != nil {
			return nil, err
		}
		if cat == nil {
			// no table bound in this process: the next query rebuilds
			n, err := st.Count(ctx, ds)
			if err != nil {
				return nil, err
			}
			out = append(out, fmt.Sprintf("invalidated:%s:%d", ds, n))
			continue
		}
		cat.Invalidate(ds)
		size, err := cat.Size(ctx, ds)
		if err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("reindexed:%s:%d", ds, size))
	}
	return out, nil
}
