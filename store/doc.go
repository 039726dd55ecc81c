// Package store defines the durable side of the spatial index: labelled point
// records kept in SQLite, a BLOB codec for points, and snapshot stores that
// persist serialized indexes so they need not be rebuilt on start. It
// includes:
//   - Record model and Store interface
//   - SQLiteStore: point rows per dataset, ordered by insertion
//   - SnapshotStore and its SQLite implementation over kd_storage
//   - Schema helpers and the point BLOB encoding
package store
