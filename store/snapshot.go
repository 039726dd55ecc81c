package store

import (
	"context"
	"database/sql"
	"errors"
)

// SQLiteSnapshots persists serialized indexes in the kd_storage table, keyed
// by point table and dataset.
type SQLiteSnapshots struct {
	db    *sql.DB
	table string
}

// NewSQLiteSnapshots ensures kd_storage exists and binds snapshots to the
// given point table.
func NewSQLiteSnapshots(db *sql.DB, table string) (*SQLiteSnapshots, error) {
	if err := EnsureSnapshotSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteSnapshots{db: db, table: table}, nil
}

// SaveSnapshot replaces the blob stored for dataset.
func (s *SQLiteSnapshots) SaveSnapshot(ctx context.Context, dataset string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO kd_storage(table_name, dataset_id, "index") VALUES(?, ?, ?)`, s.table, dataset, blob)
	return err
}

// LoadSnapshot returns the blob stored for dataset.
func (s *SQLiteSnapshots) LoadSnapshot(ctx context.Context, dataset string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT "index" FROM kd_storage WHERE table_name = ? AND dataset_id = ?`, s.table, dataset).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(blob) == 0 {
		return nil, false, nil
	}
	return blob, true, nil
}

// DeleteSnapshot removes the blob stored for dataset.
func (s *SQLiteSnapshots) DeleteSnapshot(ctx context.Context, dataset string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kd_storage WHERE table_name = ? AND dataset_id = ?`, s.table, dataset)
	return err
}

var _ SnapshotStore = (*SQLiteSnapshots)(nil)
