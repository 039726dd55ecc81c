package kdtree

import (
	"fmt"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/index"
)

// Tree is a 2-d tree over points inside a fixed bounding rectangle.
type Tree struct {
	nodes  []node
	bounds geo.Rect

	visit func(i int32) // test hook, called per node a search enters
}

// Option configures a Tree.
type Option func(*Tree)

// WithBounds sets the root rectangle. Invalid rectangles are ignored.
func WithBounds(r geo.Rect) Option {
	return func(t *Tree) {
		if r.Valid() {
			t.bounds = r
		}
	}
}

// New constructs an empty tree covering the unit square unless WithBounds
// says otherwise.
func New(opts ...Option) *Tree {
	t := &Tree{bounds: geo.UnitSquare}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bounds returns the root rectangle.
func (t *Tree) Bounds() geo.Rect { return t.bounds }

// IsEmpty reports whether the tree holds no points.
func (t *Tree) IsEmpty() bool { return len(t.nodes) == 0 }

// Size returns the number of stored points.
func (t *Tree) Size() int {
	if len(t.nodes) == 0 {
		return 0
	}
	return t.nodes[0].size
}

// Insert adds p unless it is already present. Points outside the bounds are
// rejected with index.ErrOutOfBounds.
func (t *Tree) Insert(p *geo.Point) error {
	if p == nil {
		return index.ErrInvalidArgument
	}
	if p.IsNaN() || !t.bounds.Contains(*p) {
		return fmt.Errorf("kdtree: %v not in %v: %w", *p, t.bounds, index.ErrOutOfBounds)
	}
	t.insert(*p)
	return nil
}

// InsertAll inserts points in slice order, stopping at the first error.
func (t *Tree) InsertAll(points []geo.Point) error {
	for i := range points {
		if err := t.Insert(&points[i]); err != nil {
			return err
		}
	}
	return nil
}

// insert reports whether p was added.
func (t *Tree) insert(p geo.Point) bool {
	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, node{point: p, rect: t.bounds, left: none, right: none, size: 1, axis: AxisX})
		return true
	}
	if t.find(p) {
		return false
	}
	i := int32(0)
	for {
		n := &t.nodes[i]
		n.size++
		if n.goesRight(p) {
			if n.right == none {
				child := t.newNode(p, n.rightRect(), n.axis.flip())
				t.nodes[i].right = child
				return true
			}
			i = n.right
			continue
		}
		if n.left == none {
			child := t.newNode(p, n.leftRect(), n.axis.flip())
			t.nodes[i].left = child
			return true
		}
		i = n.left
	}
}

func (t *Tree) newNode(p geo.Point, rect geo.Rect, axis Axis) int32 {
	t.nodes = append(t.nodes, node{point: p, rect: rect, left: none, right: none, size: 1, axis: axis})
	return int32(len(t.nodes) - 1)
}

// Contains reports whether p is stored.
func (t *Tree) Contains(p *geo.Point) (bool, error) {
	if p == nil {
		return false, index.ErrInvalidArgument
	}
	return t.find(*p), nil
}

func (t *Tree) find(p geo.Point) bool {
	i := int32(0)
	if len(t.nodes) == 0 {
		i = none
	}
	for i != none {
		n := &t.nodes[i]
		if n.point.Equal(p) {
			return true
		}
		if n.goesRight(p) {
			i = n.right
		} else {
			i = n.left
		}
	}
	return false
}

// Range returns the points inside r in pre-order.
func (t *Tree) Range(r *geo.Rect) ([]geo.Point, error) {
	if r == nil {
		return nil, index.ErrInvalidArgument
	}
	out := make([]geo.Point, 0)
	if len(t.nodes) == 0 {
		return out, nil
	}
	return t.collect(0, *r, out), nil
}

func (t *Tree) collect(i int32, r geo.Rect, out []geo.Point) []geo.Point {
	if i == none {
		return out
	}
	n := &t.nodes[i]
	if !n.rect.Intersects(r) {
		return out
	}
	if t.visit != nil {
		t.visit(i)
	}
	if r.Contains(n.point) {
		out = append(out, n.point)
	}
	out = t.collect(n.left, r, out)
	return t.collect(n.right, r, out)
}

// Nearest returns a stored point closest to p; ok is false for an empty tree.
func (t *Tree) Nearest(p *geo.Point) (geo.Point, bool, error) {
	if p == nil {
		return geo.Point{}, false, index.ErrInvalidArgument
	}
	if len(t.nodes) == 0 {
		return geo.Point{}, false, nil
	}
	champion := t.nodes[0].point
	best, _ := t.nearest(0, champion, champion.DistanceSquaredTo(*p), *p)
	return best, true, nil
}

// nearest descends into the query's side first; a subtree is visited only if
// its rectangle is strictly closer than the current champion.
func (t *Tree) nearest(i int32, champion geo.Point, best float64, q geo.Point) (geo.Point, float64) {
	if i == none {
		return champion, best
	}
	n := &t.nodes[i]
	if n.rect.DistanceSquaredTo(q) >= best {
		return champion, best
	}
	if t.visit != nil {
		t.visit(i)
	}
	if d := n.point.DistanceSquaredTo(q); d < best {
		champion, best = n.point, d
	}
	first, second := n.left, n.right
	if n.goesRight(q) {
		first, second = n.right, n.left
	}
	champion, best = t.nearest(first, champion, best, q)
	return t.nearest(second, champion, best, q)
}

// Points returns every stored point in pre-order. Re-inserting them in that
// order rebuilds an identical tree.
func (t *Tree) Points() []geo.Point {
	out := make([]geo.Point, 0, len(t.nodes))
	if len(t.nodes) == 0 {
		return out
	}
	return t.preorder(0, out)
}

func (t *Tree) preorder(i int32, out []geo.Point) []geo.Point {
	if i == none {
		return out
	}
	out = append(out, t.nodes[i].point)
	out = t.preorder(t.nodes[i].left, out)
	return t.preorder(t.nodes[i].right, out)
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (t *Tree) Height() int {
	if len(t.nodes) == 0 {
		return 0
	}
	return t.height(0)
}

func (t *Tree) height(i int32) int {
	if i == none {
		return 0
	}
	l := t.height(t.nodes[i].left)
	r := t.height(t.nodes[i].right)
	if l > r {
		return l + 1
	}
	return r + 1
}

// Ensure Tree satisfies the index interface.
var _ index.Index = (*Tree)(nil)
