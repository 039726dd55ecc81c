package changelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/viant/sqlite-kd/store"
)

// Replica applies upstream log entries to a local point table and tracks the
// last applied SCN per dataset.
type Replica struct {
	db    *sql.DB
	store *store.SQLiteStore
	// Table names the upstream point table recorded in the log.
	Table string
	// BatchSize bounds entries fetched per Sync call; 0 fetches all.
	BatchSize int
}

// NewReplica binds a replica to a local store.
func NewReplica(db *sql.DB, local *store.SQLiteStore, upstreamTable string) (*Replica, error) {
	if db == nil {
		return nil, store.ErrNilDB
	}
	if _, err := db.Exec(StateTableDDL()); err != nil {
		return nil, err
	}
	return &Replica{db: db, store: local, Table: upstreamTable}, nil
}

// State returns the sync state of dataset; LastSCN is 0 before the first sync.
func (r *Replica) State(ctx context.Context, dataset string) (SyncState, error) {
	s := SyncState{DatasetID: dataset, Table: r.Table}
	var updated interface{}
	err := r.db.QueryRowContext(ctx, `SELECT last_scn, updated_at FROM kd_sync_state WHERE dataset_id = ? AND point_table = ?`,
		dataset, r.Table).Scan(&s.LastSCN, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	s.UpdatedAt = asTime(updated)
	return s, err
}

// Apply replays entries in order. Inserts and updates replace the local row;
// deletes of missing rows are ignored.
func (r *Replica) Apply(ctx context.Context, entries []Entry) error {
	for i := range entries {
		e := &entries[i]
		switch e.Op {
		case OpInsert, OpUpdate:
			rec, err := e.Record()
			if err != nil {
				return fmt.Errorf("changelog: scn %d: %w", e.SCN, err)
			}
			if err := r.store.Remove(ctx, e.DatasetID, rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if _, err := r.store.AddPoints(ctx, e.DatasetID, []store.Record{rec}); err != nil {
				return err
			}
		case OpDelete:
			if err := r.store.Remove(ctx, e.DatasetID, e.PointID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		default:
			return fmt.Errorf("changelog: scn %d: unknown op %q", e.SCN, e.Op)
		}
		if _, err := r.db.ExecContext(ctx, `INSERT INTO kd_sync_state(dataset_id, point_table, last_scn, updated_at)
VALUES(?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(dataset_id, point_table) DO UPDATE SET last_scn = excluded.last_scn, updated_at = excluded.updated_at`,
			e.DatasetID, r.Table, e.SCN); err != nil {
			return err
		}
	}
	return nil
}

// Sync pulls entries of dataset newer than the local state from upstream and
// applies them. It returns the number of entries applied.
func (r *Replica) Sync(ctx context.Context, upstream *sql.DB, dataset string) (int, error) {
	state, err := r.State(ctx, dataset)
	if err != nil {
		return 0, err
	}
	entries, err := Since(ctx, upstream, r.Table, dataset, state.LastSCN, r.BatchSize)
	if err != nil {
		return 0, err
	}
	if err := r.Apply(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
