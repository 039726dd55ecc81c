// Package kd implements a SQLite virtual table answering spatial queries over
// 2-d points with MATCH semantics. Each virtual table has a shadow table
// (_kd_<name>) holding dataset_id, id, x, y and label; the per-dataset k-d
// tree is cached in memory by a catalog.Catalog and persisted in kd_storage.
//
// Features:
//   - WHERE dataset_id = ? AND <col> MATCH 'nearest:x,y' | 'knn:k:x,y' |
//     'within:r:x,y' | 'range:xmin,ymin,xmax,ymax'
//   - Auto-created shadow tables and triggers
//   - Snapshot invalidation on shadow writes through kd_invalidate
//   - kd_admin virtual table for rebuilding indexes
package kd
