package bruteforce

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/index"
)

// Set is a brute-force point index keeping points in insertion order.
type Set struct {
	points []geo.Point
	seen   map[geo.Point]struct{}
}

// New returns an empty set.
func New() *Set { return &Set{seen: make(map[geo.Point]struct{})} }

// IsEmpty reports whether the set holds no points.
func (s *Set) IsEmpty() bool { return len(s.points) == 0 }

// Size returns the number of stored points.
func (s *Set) Size() int { return len(s.points) }

// Insert adds p if it is not already present. NaN points never compare
// equal and are rejected.
func (s *Set) Insert(p *geo.Point) error {
	if p == nil {
		return index.ErrInvalidArgument
	}
	if p.IsNaN() {
		return fmt.Errorf("bruteforce: %v: %w", *p, index.ErrOutOfBounds)
	}
	if s.seen == nil {
		s.seen = make(map[geo.Point]struct{})
	}
	if _, ok := s.seen[*p]; ok {
		return nil
	}
	s.seen[*p] = struct{}{}
	s.points = append(s.points, *p)
	return nil
}

// Contains reports whether p is stored.
func (s *Set) Contains(p *geo.Point) (bool, error) {
	if p == nil {
		return false, index.ErrInvalidArgument
	}
	_, ok := s.seen[*p]
	return ok, nil
}

// Range returns points inside r in insertion order.
func (s *Set) Range(r *geo.Rect) ([]geo.Point, error) {
	if r == nil {
		return nil, index.ErrInvalidArgument
	}
	out := make([]geo.Point, 0)
	for _, p := range s.points {
		if r.Contains(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Nearest returns the first stored point at minimal distance from p.
func (s *Set) Nearest(p *geo.Point) (geo.Point, bool, error) {
	if p == nil {
		return geo.Point{}, false, index.ErrInvalidArgument
	}
	if len(s.points) == 0 {
		return geo.Point{}, false, nil
	}
	best := s.points[0]
	bestD := best.DistanceSquaredTo(*p)
	for _, q := range s.points[1:] {
		if d := q.DistanceSquaredTo(*p); d < bestD {
			best, bestD = q, d
		}
	}
	return best, true, nil
}

// KNearest returns up to k points ordered by increasing distance to p; ties
// keep insertion order.
func (s *Set) KNearest(p *geo.Point, k int) ([]index.Neighbor, error) {
	if p == nil {
		return nil, index.ErrInvalidArgument
	}
	if k <= 0 || len(s.points) == 0 {
		return []index.Neighbor{}, nil
	}
	all := make([]index.Neighbor, len(s.points))
	for i, q := range s.points {
		all[i] = index.Neighbor{Point: q, Distance: q.DistanceSquaredTo(*p)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].Distance < all[b].Distance })
	if k < len(all) {
		all = all[:k]
	}
	for i := range all {
		all[i].Distance = math.Sqrt(all[i].Distance)
	}
	return all, nil
}

// Sorted returns the points ordered by y then x.
func (s *Set) Sorted() []geo.Point {
	out := append([]geo.Point(nil), s.points...)
	sort.Slice(out, func(a, b int) bool { return out[a].Less(out[b]) })
	return out
}

// MarshalBinary stores: n(uint32), then for each point x, y (float64).
func (s *Set) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 4+16*len(s.points))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(s.points)))
	for _, p := range s.points {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(p.X))
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(p.Y))
	}
	return out, nil
}

// UnmarshalBinary restores the set from bytes.
func (s *Set) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return errors.New("bruteforce: invalid data")
	}
	n := int(binary.LittleEndian.Uint32(data[:4]))
	if len(data)-4 != 16*n {
		return errors.New("bruteforce: truncated")
	}
	restored := New()
	off := 4
	getF64 := func() float64 {
		v := math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		return v
	}
	for i := 0; i < n; i++ {
		p := geo.Point{X: getF64(), Y: getF64()}
		if err := restored.Insert(&p); err != nil {
			return err
		}
	}
	*s = *restored
	return nil
}

var (
	_ index.Index      = (*Set)(nil)
	_ index.KNearester = (*Set)(nil)
)
