package kdtree

import (
	"container/heap"
	"math"
	"sort"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/index"
)

// neighbors implements heap.Interface sorted by descending distance (max-heap).
// Distances are squared while the search runs.
type neighbors []index.Neighbor

func (h neighbors) Len() int           { return len(h) }
func (h neighbors) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h neighbors) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *neighbors) Push(x interface{}) {
	*h = append(*h, x.(index.Neighbor))
}

func (h *neighbors) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// KNearest returns up to k points ordered by increasing distance to p.
func (t *Tree) KNearest(p *geo.Point, k int) ([]index.Neighbor, error) {
	if p == nil {
		return nil, index.ErrInvalidArgument
	}
	if k <= 0 || len(t.nodes) == 0 {
		return []index.Neighbor{}, nil
	}
	h := make(neighbors, 0, k)
	t.kNearest(0, *p, k, &h)
	result := make([]index.Neighbor, len(h))
	copy(result, h)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Distance < result[j].Distance })
	for i := range result {
		result[i].Distance = math.Sqrt(result[i].Distance)
	}
	return result, nil
}

func (t *Tree) kNearest(i int32, q geo.Point, k int, h *neighbors) {
	if i == none {
		return
	}
	n := &t.nodes[i]
	if h.Len() == k && n.rect.DistanceSquaredTo(q) >= (*h)[0].Distance {
		return
	}
	if t.visit != nil {
		t.visit(i)
	}
	d := n.point.DistanceSquaredTo(q)
	if h.Len() < k {
		heap.Push(h, index.Neighbor{Point: n.point, Distance: d})
	} else if d < (*h)[0].Distance {
		heap.Pop(h)
		heap.Push(h, index.Neighbor{Point: n.point, Distance: d})
	}
	first, second := n.left, n.right
	if n.goesRight(q) {
		first, second = n.right, n.left
	}
	t.kNearest(first, q, k, h)
	t.kNearest(second, q, k, h)
}

var _ index.KNearester = (*Tree)(nil)
