package index

import "github.com/viant/sqlite-kd/geo"

// Index defines a 2-d point index supporting incremental insertion, exact
// membership, rectangle range queries and nearest-point search, plus binary
// serialization for persistence.
type Index interface {
	// Insert adds p unless an identical point is already stored.
	// A nil point yields ErrInvalidArgument.
	Insert(p *geo.Point) error

	// Contains reports whether an identical point is stored.
	Contains(p *geo.Point) (bool, error)

	// Range returns every stored point inside r, boundary inclusive. The order
	// of the result is unspecified.
	Range(r *geo.Rect) ([]geo.Point, error)

	// Nearest returns a stored point closest to p; ok is false when the index
	// is empty. Among equidistant points any may be returned.
	Nearest(p *geo.Point) (nearest geo.Point, ok bool, err error)

	// Size returns the number of distinct stored points.
	Size() int

	// IsEmpty reports whether Size() == 0.
	IsEmpty() bool

	// MarshalBinary serializes the index into a byte slice.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary reconstructs the index from a serialized byte slice.
	UnmarshalBinary(data []byte) error
}
