// Package kdtree provides a 2-d tree point index. Points are inserted
// incrementally; each node splits the plane alternately by x and by y and
// caches the rectangle it is responsible for, which lets range and
// nearest-neighbour queries skip whole subtrees. Nodes are kept in an arena
// slice and reference their children by position.
//
// A Tree is not safe for concurrent use; see package catalog for a guarded,
// persisted wrapper.
package kdtree
