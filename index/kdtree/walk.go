package kdtree

import "github.com/viant/sqlite-kd/geo"

// NodeView is a read-only snapshot of one node handed to Walk callbacks.
type NodeView struct {
	Point geo.Point
	// Rect is the region of the plane the node is responsible for.
	Rect  geo.Rect
	Axis  Axis
	Depth int
	// Size counts the points in the node's subtree, itself included.
	Size int
}

// Walk visits nodes in order (left subtree, node, right subtree) until fn
// returns false.
func (t *Tree) Walk(fn func(NodeView) bool) {
	if len(t.nodes) == 0 {
		return
	}
	t.walk(0, 0, fn)
}

func (t *Tree) walk(i int32, depth int, fn func(NodeView) bool) bool {
	if i == none {
		return true
	}
	n := &t.nodes[i]
	if !t.walk(n.left, depth+1, fn) {
		return false
	}
	if !fn(NodeView{Point: n.point, Rect: n.rect, Axis: n.axis, Depth: depth, Size: n.size}) {
		return false
	}
	return t.walk(n.right, depth+1, fn)
}
