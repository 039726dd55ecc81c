package kd

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"sync"

	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"

	"github.com/viant/sqlite-kd/catalog"
	"github.com/viant/sqlite-kd/engine"
	"github.com/viant/sqlite-kd/geo"
)

// DefaultColumn is the visible id column when CREATE VIRTUAL TABLE names none.
const DefaultColumn = "point_id"

// Column positions of the declared virtual table.
const (
	colDataset = iota
	colID
	colX
	colY
	colLabel
	colDistance
)

// Module implements vtab.Module for the kd virtual table.
type Module struct {
	db *sql.DB
}

// Table represents a single kd virtual table instance.
type Table struct {
	db        *sql.DB
	dbName    string
	tableName string
	column    string
	shadow    string // qualified shadow table name (e.g. "main._kd_places")

	kind   catalog.Kind
	bounds geo.Rect

	shadowMu    sync.Mutex
	shadowReady bool
}

type tableOptions struct {
	kind   catalog.Kind
	bounds geo.Rect
}

// parseTableOptions reads key=value module arguments: index=kd|brute and
// bounds=xmin:ymin:xmax:ymax. Unknown keys are ignored.
func parseTableOptions(args []string) (tableOptions, error) {
	opts := tableOptions{kind: catalog.KindKD, bounds: geo.UnitSquare}
	for _, raw := range args {
		a := strings.TrimSpace(raw)
		if a == "" {
			continue
		}
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.Trim(strings.TrimSpace(val), `'"`)
		switch key {
		case "index":
			kind, err := catalog.ParseKind(val)
			if err != nil {
				return opts, err
			}
			opts.kind = kind
		case "bounds":
			parts := strings.Split(val, ":")
			if len(parts) != 4 {
				return opts, fmt.Errorf("kd: bounds expects xmin:ymin:xmax:ymax, got %q", val)
			}
			var v [4]float64
			for i, p := range parts {
				f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					return opts, fmt.Errorf("kd: invalid bounds %q: %w", val, err)
				}
				v[i] = f
			}
			r, err := geo.NewRect(v[0], v[1], v[2], v[3])
			if err != nil {
				return opts, fmt.Errorf("kd: bounds %q: %w", val, err)
			}
			opts.bounds = r
		}
	}
	return opts, nil
}

var registerFuncsOnce sync.Once

// Register registers the kd and kd_admin virtual table modules with db along
// with the kd_invalidate, kd_distance and kd_rect_contains SQL functions.
// Call it before the first statement so every pooled connection sees them.
func Register(db *sql.DB) error {
	if err := vtab.RegisterModule(db, "kd", &Module{db: db}); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	if err := vtab.RegisterModule(db, "kd_admin", &AdminModule{db: db}); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	var err error
	registerFuncsOnce.Do(func() {
		err = sqlite.RegisterScalarFunction("kd_invalidate", 2, invalidateFunc)
	})
	if err != nil {
		return err
	}
	return engine.RegisterFunctions(db)
}

// InvalidateCache drops in-memory indexes for a kd table across connections.
// table is the shadow name ("main._kd_places", "_kd_places") or the virtual
// table name; an empty dataset drops every dataset of the table.
func InvalidateCache(table, dataset string) int {
	n := catalog.InvalidateTable(table, dataset)
	if tableNameFromShadow(table) == "" {
		n += catalog.InvalidateTable("main."+ShadowTableName(table), dataset)
	}
	return n
}

// invalidateFunc implements SQL scalar kd_invalidate(table TEXT, dataset TEXT) -> INT.
func invalidateFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return int64(0), nil
	}
	table, err := asString(args[0])
	if err != nil {
		return int64(0), nil
	}
	var dataset string
	if args[1] != nil {
		if dataset, err = asString(args[1]); err != nil {
			return int64(0), nil
		}
	}
	return int64(InvalidateCache(table, dataset)), nil
}

// Create initializes a kd table instance. The shadow table is created lazily
// on first use or by EnsureShadow.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, "CREATE", args)
}

// Connect attaches to an existing kd table instance.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, "CONNECT", args)
}

func (m *Module) connect(ctx vtab.Context, op string, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("kd: %s expects at least 3 args, got %d", op, len(args))
	}
	if err := ctx.EnableConstraintSupport(); err != nil {
		return nil, fmt.Errorf("kd: EnableConstraintSupport failed: %w", err)
	}
	col := DefaultColumn
	optStart := 3
	if len(args) > 3 {
		a := strings.TrimSpace(args[3])
		if a != "" && !strings.Contains(a, "=") {
			col = a
			optStart = 4
		}
	}
	opts, err := parseTableOptions(args[optStart:])
	if err != nil {
		return nil, err
	}
	decl := fmt.Sprintf("CREATE TABLE %s(dataset_id TEXT, %s TEXT, x REAL, y REAL, label TEXT, distance REAL HIDDEN)", args[2], col)
	if err := ctx.Declare(decl); err != nil {
		return nil, err
	}
	t := &Table{db: m.db, dbName: args[1], tableName: args[2], column: col, kind: opts.kind, bounds: opts.bounds}
	t.shadow = t.qualifiedShadow()
	return t, nil
}

const (
	idxDatasetScan = iota
	idxDatasetMatch
)

// BestIndex requires dataset_id equality and pushes down MATCH on the id column.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	var datasetConstraint, matchConstraint *vtab.Constraint
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		switch {
		case c.Column == colDataset && c.Op == vtab.OpEQ:
			datasetConstraint = c
		case c.Column == colID && c.Op == vtab.OpMATCH:
			matchConstraint = c
		}
	}
	if datasetConstraint == nil {
		if matchConstraint != nil {
			return fmt.Errorf("kd: dataset_id constraint is required with MATCH")
		}
		return fmt.Errorf("kd: dataset_id constraint required")
	}
	datasetConstraint.ArgIndex = 0
	datasetConstraint.Omit = true
	info.IdxNum = idxDatasetScan
	if matchConstraint != nil {
		matchConstraint.ArgIndex = 1
		matchConstraint.Omit = true
		info.IdxNum = idxDatasetMatch
	}
	return nil
}

// Open allocates a new cursor.
func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

// Disconnect cleans up per-connection resources.
func (t *Table) Disconnect() error { return nil }

// Destroy keeps the shadow table and drops the cached indexes.
func (t *Table) Destroy() error {
	catalog.InvalidateTable(t.shadow, "")
	return nil
}

func asString(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case nil:
		return "", fmt.Errorf("kd: dataset_id is nil")
	default:
		return "", fmt.Errorf("kd: unsupported dataset_id type %T", v)
	}
}
