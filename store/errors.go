package store

import "errors"

var (
	// ErrNilDB indicates a nil *sql.DB was supplied.
	ErrNilDB = errors.New("store: db is nil")
	// ErrDatasetRequired indicates an empty dataset identifier.
	ErrDatasetRequired = errors.New("store: dataset is required")
	// ErrInvalidTable indicates a table name that is not a plain identifier.
	ErrInvalidTable = errors.New("store: invalid table name")
	// ErrNotFound indicates no record matched.
	ErrNotFound = errors.New("store: record not found")
)
