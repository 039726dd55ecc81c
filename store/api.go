package store

import (
	"context"

	"github.com/viant/sqlite-kd/geo"
)

// Record is a labelled point belonging to a dataset.
type Record struct {
	// ID identifies the record within its dataset. When empty on insert the
	// store generates one.
	ID string

	// Dataset partitions records; every dataset gets its own index.
	Dataset string

	Point geo.Point

	// Label is an opaque caller payload (a name, JSON, ...).
	Label string

	// Rowid is the SQLite rowid; it reflects insertion order and is set by
	// read operations only.
	Rowid int64
}

// Store defines the durable point storage the index catalog builds from.
type Store interface {
	// AddPoints inserts records into dataset and returns their IDs.
	AddPoints(ctx context.Context, dataset string, records []Record) ([]string, error)

	// Points returns every record of dataset in insertion order.
	Points(ctx context.Context, dataset string) ([]Record, error)

	// Count returns the number of records in dataset.
	Count(ctx context.Context, dataset string) (int, error)

	// Remove deletes the record with the given ID.
	Remove(ctx context.Context, dataset, id string) error
}

// SnapshotStore persists serialized indexes per dataset.
type SnapshotStore interface {
	// SaveSnapshot stores blob for dataset, replacing any previous one.
	SaveSnapshot(ctx context.Context, dataset string, blob []byte) error

	// LoadSnapshot returns the stored blob; ok is false when none exists.
	LoadSnapshot(ctx context.Context, dataset string) (blob []byte, ok bool, err error)

	// DeleteSnapshot removes the stored blob if any.
	DeleteSnapshot(ctx context.Context, dataset string) error
}
