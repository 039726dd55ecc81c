package geo

import (
	"math"
	"strconv"
)

// Point is a location in the plane. Equality is exact on both coordinates.
type Point struct {
	X float64
	Y float64
}

// NewPoint returns a point for the given coordinates.
func NewPoint(x, y float64) Point { return Point{X: x, Y: y} }

// Equal reports whether both coordinates match exactly.
func (p Point) Equal(q Point) bool { return p.X == q.X && p.Y == q.Y }

// DistanceSquaredTo returns the squared Euclidean distance to q.
func (p Point) DistanceSquaredTo(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// DistanceTo returns the Euclidean distance to q.
func (p Point) DistanceTo(q Point) float64 { return math.Sqrt(p.DistanceSquaredTo(q)) }

// Less orders points by y, breaking ties by x.
func (p Point) Less(q Point) bool {
	if p.Y != q.Y {
		return p.Y < q.Y
	}
	return p.X < q.X
}

// IsNaN reports whether either coordinate is NaN.
func (p Point) IsNaN() bool { return math.IsNaN(p.X) || math.IsNaN(p.Y) }

func (p Point) String() string {
	return "(" + strconv.FormatFloat(p.X, 'g', -1, 64) + ", " + strconv.FormatFloat(p.Y, 'g', -1, 64) + ")"
}
