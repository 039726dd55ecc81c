// Package geo defines the planar primitives shared by the indexes in this
// module: an immutable Point and an axis-aligned Rect with containment,
// intersection and distance helpers.
package geo
