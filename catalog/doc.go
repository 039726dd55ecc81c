// Package catalog keeps one in-memory point index per dataset, built lazily
// from a store.Store and shared by every caller in the process.
//
// A cold dataset is loaded from its persisted snapshot when one exists and
// decodes cleanly; otherwise the index is rebuilt by inserting the stored
// points in insertion order, and the result is saved as the new snapshot.
// Concurrent first queries for the same dataset wait on a single build.
package catalog
