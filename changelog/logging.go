package changelog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/viant/sqlite-kd/store"
)

const (
	// DefaultLogTable captures row-level SCN events.
	DefaultLogTable = "kd_point_log"

	// DefaultSeqTable stores the next SCN per dataset.
	DefaultSeqTable = "kd_dataset_scn"

	// DefaultStateTable stores the last applied SCN on replicas.
	DefaultStateTable = "kd_sync_state"
)

// LogTableDDL returns the DDL for kd_point_log.
func LogTableDDL() string {
	return `CREATE TABLE IF NOT EXISTS kd_point_log (
    dataset_id   TEXT NOT NULL,
    point_table  TEXT NOT NULL,
    scn          INTEGER NOT NULL,
    op           TEXT NOT NULL,
    point_id     TEXT NOT NULL,
    payload      BLOB NOT NULL,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(dataset_id, point_table, scn)
);`
}

// SeqTableDDL returns the DDL for tracking the next SCN per dataset.
func SeqTableDDL() string {
	return `CREATE TABLE IF NOT EXISTS kd_dataset_scn (
    dataset_id TEXT PRIMARY KEY,
    next_scn   INTEGER NOT NULL
);`
}

// StateTableDDL returns the DDL of the replica-side sync state.
func StateTableDDL() string {
	return `CREATE TABLE IF NOT EXISTS kd_sync_state (
    dataset_id  TEXT NOT NULL,
    point_table TEXT NOT NULL,
    last_scn    INTEGER NOT NULL,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(dataset_id, point_table)
);`
}

// SQLiteTriggers returns the trigger DDL capturing inserts, updates, and
// deletes on pointTable into the log. The payload is a JSON row image.
func SQLiteTriggers(pointTable, seqTable, logTable string) []string {
	if seqTable == "" {
		seqTable = DefaultSeqTable
	}
	if logTable == "" {
		logTable = DefaultLogTable
	}
	base := sanitizeIdentifier(pointTable)
	payload := func(alias string) string {
		return fmt.Sprintf(`json_object(
        'dataset_id', %[1]s.dataset_id,
        'id', %[1]s.id,
        'x', %[1]s.x,
        'y', %[1]s.y,
        'label', %[1]s.label
    )`, alias)
	}
	advance := func(alias string) string {
		return fmt.Sprintf(`INSERT INTO %[1]s(dataset_id, next_scn)
    VALUES (%[2]s.dataset_id, 1)
    ON CONFLICT(dataset_id) DO UPDATE SET next_scn = next_scn + 1;`, seqTable, alias)
	}
	scnExpr := func(alias string) string {
		return fmt.Sprintf(`(SELECT next_scn FROM %s WHERE dataset_id = %s.dataset_id)`, seqTable, alias)
	}
	trigger := func(suffix, event, alias, op string) string {
		return fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_%s AFTER %s ON %s
BEGIN
    %s
    INSERT INTO %s(dataset_id, point_table, scn, op, point_id, payload)
    VALUES (
        %s.dataset_id,
        '%s',
        %s,
        '%s',
        %s.id,
        %s
    );
END;`, base, suffix, event, pointTable, advance(alias), logTable, alias, pointTable, scnExpr(alias), op, alias, payload(alias))
	}
	return []string{
		trigger("ai", "INSERT", "NEW", OpInsert),
		trigger("au", "UPDATE", "NEW", OpUpdate),
		trigger("ad", "DELETE", "OLD", OpDelete),
	}
}

// Install creates the log tables and the triggers on pointTable.
func Install(ctx context.Context, db *sql.DB, pointTable string) error {
	if db == nil {
		return store.ErrNilDB
	}
	if !store.ValidTable(pointTable) {
		return fmt.Errorf("%w: %q", store.ErrInvalidTable, pointTable)
	}
	stmts := append([]string{LogTableDDL(), SeqTableDDL()}, SQLiteTriggers(pointTable, "", "")...)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("changelog: install on %s: %w", pointTable, err)
		}
	}
	return nil
}

// Since returns up to limit log entries of dataset in pointTable with an SCN
// greater than after, in SCN order. limit <= 0 returns every entry.
func Since(ctx context.Context, db *sql.DB, pointTable, dataset string, after int64, limit int) ([]Entry, error) {
	if dataset == "" {
		return nil, store.ErrDatasetRequired
	}
	q := `SELECT dataset_id, point_table, scn, op, point_id, payload, created_at
FROM kd_point_log WHERE point_table = ? AND dataset_id = ? AND scn > ? ORDER BY scn`
	args := []interface{}{pointTable, dataset, after}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			payload string
			created interface{}
		)
		if err := rows.Scan(&e.DatasetID, &e.Table, &e.SCN, &e.Op, &e.PointID, &payload, &created); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		e.CreatedAt = asTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func asTime(v interface{}) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		if t, err := time.Parse(sqliteTimeLayout, val); err == nil {
			return t
		}
	case []byte:
		if t, err := time.Parse(sqliteTimeLayout, string(val)); err == nil {
			return t
		}
	}
	return time.Time{}
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return replacer.Replace(name)
}
