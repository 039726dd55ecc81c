package kdtree

import "github.com/viant/sqlite-kd/geo"

// none marks an absent child.
const none int32 = -1

// Axis selects the coordinate a node partitions on.
type Axis uint8

const (
	// AxisX splits by x; the partition line is vertical.
	AxisX Axis = iota
	// AxisY splits by y; the partition line is horizontal.
	AxisY
)

func (a Axis) flip() Axis { return a ^ 1 }

func (a Axis) coord(p geo.Point) float64 {
	if a == AxisX {
		return p.X
	}
	return p.Y
}

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

type node struct {
	point geo.Point
	rect  geo.Rect
	left  int32
	right int32
	size  int
	axis  Axis
}

// goesRight reports whether p routes to the right subtree: ties on the
// discriminating coordinate go right.
func (n *node) goesRight(p geo.Point) bool {
	return n.axis.coord(p) >= n.axis.coord(n.point)
}

// leftRect returns the left (x split) or bottom (y split) half of n.rect.
func (n *node) leftRect() geo.Rect {
	r := n.rect
	if n.axis == AxisX {
		r.XMax = n.point.X
	} else {
		r.YMax = n.point.Y
	}
	return r
}

// rightRect returns the right (x split) or top (y split) half of n.rect.
func (n *node) rightRect() geo.Rect {
	r := n.rect
	if n.axis == AxisX {
		r.XMin = n.point.X
	} else {
		r.YMin = n.point.Y
	}
	return r
}
