package geo

import (
	"math"
	"strconv"
)

// Rect is an axis-aligned rectangle [XMin, XMax] x [YMin, YMax].
type Rect struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// UnitSquare is [0,1] x [0,1].
var UnitSquare = Rect{XMin: 0, YMin: 0, XMax: 1, YMax: 1}

// NewRect validates and returns a rectangle.
func NewRect(xmin, ymin, xmax, ymax float64) (Rect, error) {
	r := Rect{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
	if !r.Valid() {
		return Rect{}, ErrInvalidRect
	}
	return r, nil
}

// Valid reports whether min <= max on both axes; NaN bounds are never valid.
func (r Rect) Valid() bool { return r.XMin <= r.XMax && r.YMin <= r.YMax }

// Width returns XMax - XMin.
func (r Rect) Width() float64 { return r.XMax - r.XMin }

// Height returns YMax - YMin.
func (r Rect) Height() float64 { return r.YMax - r.YMin }

// Contains reports whether p lies inside r, boundary included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.XMin && p.X <= r.XMax && p.Y >= r.YMin && p.Y <= r.YMax
}

// Intersects reports whether r and o overlap; touching boundaries count.
func (r Rect) Intersects(o Rect) bool {
	return r.XMax >= o.XMin && r.YMax >= o.YMin && o.XMax >= r.XMin && o.YMax >= r.YMin
}

// DistanceSquaredTo returns the squared distance from p to the closest point
// of r, 0 when p is inside.
func (r Rect) DistanceSquaredTo(p Point) float64 {
	var dx, dy float64
	if p.X < r.XMin {
		dx = p.X - r.XMin
	} else if p.X > r.XMax {
		dx = p.X - r.XMax
	}
	if p.Y < r.YMin {
		dy = p.Y - r.YMin
	} else if p.Y > r.YMax {
		dy = p.Y - r.YMax
	}
	return dx*dx + dy*dy
}

// DistanceTo returns the distance from p to the closest point of r.
func (r Rect) DistanceTo(p Point) float64 { return math.Sqrt(r.DistanceSquaredTo(p)) }

func (r Rect) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return "[" + f(r.XMin) + ", " + f(r.XMax) + "] x [" + f(r.YMin) + ", " + f(r.YMax) + "]"
}
