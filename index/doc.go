// Package index defines a minimal abstraction for 2-d point indexes that can
// be grown by insertion, queried by rectangle or nearest point, and
// serialized for persistence. Implementations in this module include a
// brute-force baseline and a k-d tree.
package index
