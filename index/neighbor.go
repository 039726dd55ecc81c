package index

import "github.com/viant/sqlite-kd/geo"

// Neighbor describes a candidate returned by a kNN search.
type Neighbor struct {
	Point    geo.Point
	Distance float64
}

// KNearester is implemented by indexes answering k-nearest-neighbor queries.
type KNearester interface {
	// KNearest returns up to k points ordered by increasing distance to p.
	KNearest(p *geo.Point, k int) ([]Neighbor, error)
}
