package store

import (
	"database/sql"
	"fmt"
	"regexp"
)

// DefaultTable is the point table used when no other name is configured.
const DefaultTable = "kd_points"

// SnapshotTable holds serialized indexes keyed by point table and dataset.
const SnapshotTable = "kd_storage"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidTable reports whether name is a plain, optionally schema-qualified,
// identifier that is safe to interpolate into SQL.
func ValidTable(name string) bool { return identifier.MatchString(name) }

// PointsDDL returns the DDL of a point table.
func PointsDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    dataset_id TEXT NOT NULL,
    id TEXT NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    label TEXT,
    PRIMARY KEY(dataset_id, id)
);
`, table)
}

const snapshotDDL = `
CREATE TABLE IF NOT EXISTS kd_storage (
    table_name TEXT NOT NULL,
    dataset_id TEXT NOT NULL DEFAULT '',
    "index"    BLOB,
    PRIMARY KEY (table_name, dataset_id)
);
`

// EnsureSchema creates the point table if it does not already exist.
func EnsureSchema(db *sql.DB, table string) error {
	if db == nil {
		return ErrNilDB
	}
	if !ValidTable(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	_, err := db.Exec(PointsDDL(table))
	return err
}

// EnsureSnapshotSchema creates the kd_storage table if it does not already exist.
func EnsureSnapshotSchema(db *sql.DB) error {
	if db == nil {
		return ErrNilDB
	}
	_, err := db.Exec(snapshotDDL)
	return err
}
