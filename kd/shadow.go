package kd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/sqlite-kd/catalog"
	"github.com/viant/sqlite-kd/store"
)

const shadowPrefix = "_kd_"

// ShadowTableName derives the shadow table name of a kd virtual table,
// e.g. ShadowTableName("places") == "_kd_places".
func ShadowTableName(virtualTable string) string {
	return shadowPrefix + virtualTable
}

func (t *Table) qualifiedShadow() string {
	base := ShadowTableName(t.tableName)
	if strings.TrimSpace(t.dbName) == "" {
		return base
	}
	return t.dbName + "." + base
}

func tableNameFromShadow(shadow string) string {
	if i := strings.Index(shadow, "."+shadowPrefix); i >= 0 {
		return shadow[i+len("."+shadowPrefix):]
	}
	if strings.HasPrefix(shadow, shadowPrefix) {
		return strings.TrimPrefix(shadow, shadowPrefix)
	}
	return ""
}

// EnsureShadow creates the shadow table of virtualTable in the main schema
// with its invalidation triggers, plus kd_storage.
func EnsureShadow(ctx context.Context, db *sql.DB, virtualTable string) error {
	if db == nil {
		return store.ErrNilDB
	}
	return ensureShadow(ctx, db, "main."+ShadowTableName(virtualTable))
}

// InstallTriggers creates the point table, when missing, with triggers that
// drop the snapshot and the cached index of a dataset on every SQL write. The
// catalog serving the table must be registered under the same name, and
// Register must have run on db.
func InstallTriggers(ctx context.Context, db *sql.DB, table string) error {
	if db == nil {
		return store.ErrNilDB
	}
	return ensureShadow(ctx, db, table)
}

func (t *Table) ensureShadow(ctx context.Context) error {
	t.shadowMu.Lock()
	defer t.shadowMu.Unlock()
	if t.shadowReady {
		return nil
	}
	if err := ensureShadow(ctx, t.db, t.shadow); err != nil {
		return err
	}
	t.shadowReady = true
	return nil
}

// ensureShadow creates the point table and triggers that, on any change,
// delete the persisted snapshot and drop the cached index of the dataset.
func ensureShadow(ctx context.Context, db *sql.DB, shadow string) error {
	if err := store.EnsureSchema(db, shadow); err != nil {
		return err
	}
	if err := store.EnsureSnapshotSchema(db); err != nil {
		return err
	}
	trigBase := sanitizeName("trg_kd_" + shadow)
	lit := quoteLiteral(shadow)
	delNew := `DELETE FROM kd_storage WHERE table_name = ` + lit + ` AND dataset_id = NEW.dataset_id;`
	invNew := `SELECT kd_invalidate(` + lit + `, NEW.dataset_id);`
	delOld := `DELETE FROM kd_storage WHERE table_name = ` + lit + ` AND dataset_id = OLD.dataset_id;`
	invOld := `SELECT kd_invalidate(` + lit + `, OLD.dataset_id);`
	stmts := []string{
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_ins AFTER INSERT ON %s BEGIN %s %s END;`, trigBase, shadow, delNew, invNew),
		// dataset moves invalidate both sides
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_upd AFTER UPDATE ON %s BEGIN %s %s %s %s END;`, trigBase, shadow, delNew, invNew, delOld, invOld),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_del AFTER DELETE ON %s BEGIN %s %s END;`, trigBase, shadow, delOld, invOld),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// binding is the catalog and store serving one shadow table of one database.
type binding struct {
	store   *store.SQLiteStore
	catalog *catalog.Catalog
}

var bindings = struct {
	mu    sync.Mutex
	byKey map[string]*binding
}{byKey: make(map[string]*binding)}

// binding returns the process-wide catalog of the table, creating the shadow
// table and catalog on first use.
func (t *Table) binding(ctx context.Context) (*binding, error) {
	if t.db == nil {
		return nil, store.ErrNilDB
	}
	if err := t.ensureShadow(ctx); err != nil {
		return nil, err
	}
	dbPath, err := resolveDbPath(ctx, t.db, t.dbName)
	if err != nil {
		return nil, err
	}
	key := dbPath + "|" + t.shadow
	bindings.mu.Lock()
	defer bindings.mu.Unlock()
	if b := bindings.byKey[key]; b != nil {
		return b, nil
	}
	st, err := store.NewSQLiteStore(t.db, store.WithTable(t.shadow))
	if err != nil {
		return nil, err
	}
	snaps, err := store.NewSQLiteSnapshots(t.db, t.shadow)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.New(st,
		catalog.WithName(t.shadow),
		catalog.WithSnapshots(snaps),
		catalog.WithKind(t.kind),
		catalog.WithBounds(t.bounds),
	)
	if err != nil {
		return nil, err
	}
	b := &binding{store: st, catalog: cat}
	bindings.byKey[key] = b
	return b, nil
}

func resolveDbPath(ctx context.Context, db *sql.DB, dbName string) (string, error) {
	if dbName == "" {
		dbName = "main"
	}
	rows, err := db.QueryContext(ctx, `SELECT name, file FROM pragma_database_list`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	for rows.Next() {
		var name, file string
		if err := rows.Scan(&name, &file); err != nil {
			return "", err
		}
		if name == dbName {
			if file == "" {
				return name, nil
			}
			return file, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return dbName, nil
}

// sanitizeName converts a qualified name into a safe identifier for triggers.
func sanitizeName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

// quoteLiteral returns s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
