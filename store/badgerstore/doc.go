// Package badgerstore persists serialized indexes in an embedded Badger
// key-value store, as an alternative to the kd_storage SQLite table when the
// point data lives elsewhere or snapshots should survive a database reset.
package badgerstore
