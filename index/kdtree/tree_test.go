package kdtree_test

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/index"
	"github.com/viant/sqlite-kd/index/bruteforce"
	"github.com/viant/sqlite-kd/index/kdtree"
)

func samplePoints(rng *rand.Rand, n int, grid bool) []geo.Point {
	out := make([]geo.Point, n)
	for i := range out {
		if grid {
			// coarse lattice forces shared coordinates, duplicates and ties
			out[i] = geo.Point{X: float64(rng.Intn(11)) / 10, Y: float64(rng.Intn(11)) / 10}
			continue
		}
		out[i] = geo.Point{X: rng.Float64(), Y: rng.Float64()}
	}
	return out
}

func build(t *testing.T, points []geo.Point) (*kdtree.Tree, *bruteforce.Set) {
	t.Helper()
	tree := kdtree.New()
	set := bruteforce.New()
	for i := range points {
		require.NoError(t, tree.Insert(&points[i]))
		require.NoError(t, set.Insert(&points[i]))
	}
	return tree, set
}

func TestTree_Example(t *testing.T) {
	tree, _ := build(t, []geo.Point{{X: 0.5, Y: 0.5}, {X: 0.25, Y: 0.75}, {X: 0.75, Y: 0.25}})
	assert.Equal(t, 3, tree.Size())
	assert.False(t, tree.IsEmpty())

	ok, err := tree.Contains(&geo.Point{X: 0.25, Y: 0.75})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tree.Contains(&geo.Point{X: 0.1, Y: 0.1})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := tree.Range(&geo.Rect{XMin: 0, YMin: 0, XMax: 0.6, YMax: 0.6})
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{{X: 0.5, Y: 0.5}}, got)

	origin := geo.Point{}
	nearest, ok, err := tree.Nearest(&origin)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, math.Sqrt(0.5), nearest.DistanceTo(origin), 1e-12)

	// the two remaining points are equidistant from the origin; either order is valid
	kn, err := tree.KNearest(&origin, 3)
	require.NoError(t, err)
	require.Len(t, kn, 3)
	assert.Equal(t, kn[1].Distance, kn[2].Distance)
	assert.ElementsMatch(t, []geo.Point{{X: 0.25, Y: 0.75}, {X: 0.75, Y: 0.25}}, []geo.Point{kn[1].Point, kn[2].Point})
}

func TestTree_Empty(t *testing.T) {
	tree := kdtree.New()
	assert.True(t, tree.IsEmpty())
	assert.Equal(t, 0, tree.Size())
	assert.Equal(t, 0, tree.Height())

	_, ok, err := tree.Nearest(&geo.Point{X: 0.3, Y: 0.3})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := tree.Range(&geo.UnitSquare)
	require.NoError(t, err)
	assert.Empty(t, got)

	ok, err = tree.Contains(&geo.Point{})
	require.NoError(t, err)
	assert.False(t, ok)

	kn, err := tree.KNearest(&geo.Point{}, 3)
	require.NoError(t, err)
	assert.Empty(t, kn)
}

func TestTree_NilArguments(t *testing.T) {
	tree, _ := build(t, []geo.Point{{X: 0.5, Y: 0.5}})

	t.Run("insert", func(t *testing.T) {
		require.ErrorIs(t, tree.Insert(nil), index.ErrInvalidArgument)
		assert.Equal(t, 1, tree.Size())
	})
	t.Run("contains", func(t *testing.T) {
		_, err := tree.Contains(nil)
		require.ErrorIs(t, err, index.ErrInvalidArgument)
	})
	t.Run("range", func(t *testing.T) {
		_, err := tree.Range(nil)
		require.ErrorIs(t, err, index.ErrInvalidArgument)
	})
	t.Run("nearest", func(t *testing.T) {
		_, _, err := tree.Nearest(nil)
		require.ErrorIs(t, err, index.ErrInvalidArgument)
	})
	t.Run("knearest", func(t *testing.T) {
		_, err := tree.KNearest(nil, 2)
		require.ErrorIs(t, err, index.ErrInvalidArgument)
	})
}

func TestTree_OutOfBounds(t *testing.T) {
	tree := kdtree.New()
	for _, p := range []geo.Point{{X: 1.5, Y: 0.5}, {X: 0.5, Y: -0.1}, {X: math.NaN(), Y: 0.5}} {
		p := p
		err := tree.Insert(&p)
		require.Error(t, err, "point %v", p)
		assert.True(t, errors.Is(err, index.ErrOutOfBounds))
		assert.True(t, errors.Is(err, index.ErrInvalidArgument))
	}
	assert.True(t, tree.IsEmpty())

	wide := kdtree.New(kdtree.WithBounds(geo.Rect{XMin: -10, YMin: -10, XMax: 10, YMax: 10}))
	require.NoError(t, wide.Insert(&geo.Point{X: -7, Y: 3}))
	assert.Equal(t, geo.Rect{XMin: -10, YMin: -10, XMax: 10, YMax: 10}, wide.Bounds())

	ignored := kdtree.New(kdtree.WithBounds(geo.Rect{XMin: 1, YMin: 0, XMax: 0, YMax: 1}))
	assert.Equal(t, geo.UnitSquare, ignored.Bounds())
}

func TestTree_DuplicateInsert(t *testing.T) {
	tree, _ := build(t, []geo.Point{{X: 0.5, Y: 0.5}, {X: 0.2, Y: 0.3}, {X: 0.7, Y: 0.9}})
	before, err := tree.Range(&geo.UnitSquare)
	require.NoError(t, err)
	height := tree.Height()

	require.NoError(t, tree.Insert(&geo.Point{X: 0.2, Y: 0.3}))
	require.NoError(t, tree.Insert(&geo.Point{X: 0.5, Y: 0.5}))
	assert.Equal(t, 3, tree.Size())
	assert.Equal(t, height, tree.Height())

	after, err := tree.Range(&geo.UnitSquare)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTree_TiesRouteRight(t *testing.T) {
	// second point shares the root's x, third shares the second's y
	tree, _ := build(t, []geo.Point{{X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.2}, {X: 0.8, Y: 0.2}})
	var views []kdtree.NodeView
	tree.Walk(func(v kdtree.NodeView) bool {
		views = append(views, v)
		return true
	})
	require.Len(t, views, 3)
	// in-order: root has no left child, so it comes first
	assert.Equal(t, geo.Point{X: 0.5, Y: 0.5}, views[0].Point)
	assert.Equal(t, 0, views[0].Depth)
	assert.Equal(t, 3, views[0].Size)

	assert.Equal(t, geo.Point{X: 0.5, Y: 0.2}, views[1].Point)
	assert.Equal(t, kdtree.AxisY, views[1].Axis)
	assert.Equal(t, geo.Rect{XMin: 0.5, YMin: 0, XMax: 1, YMax: 1}, views[1].Rect)

	assert.Equal(t, geo.Point{X: 0.8, Y: 0.2}, views[2].Point)
	assert.Equal(t, kdtree.AxisX, views[2].Axis)
	assert.Equal(t, 2, views[2].Depth)
	assert.Equal(t, geo.Rect{XMin: 0.5, YMin: 0.2, XMax: 1, YMax: 1}, views[2].Rect)
}

func TestTree_NodeInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tree, set := build(t, samplePoints(rng, 500, false))
	require.Equal(t, set.Size(), tree.Size())

	sizes := 0
	tree.Walk(func(v kdtree.NodeView) bool {
		assert.True(t, v.Rect.Contains(v.Point), "node %v outside its rect %v", v.Point, v.Rect)
		if v.Depth%2 == 0 {
			assert.Equal(t, kdtree.AxisX, v.Axis)
		} else {
			assert.Equal(t, kdtree.AxisY, v.Axis)
		}
		if v.Depth == 0 {
			assert.Equal(t, geo.UnitSquare, v.Rect)
			assert.Equal(t, tree.Size(), v.Size)
		}
		sizes++
		return true
	})
	assert.Equal(t, tree.Size(), sizes)

	visited := 0
	tree.Walk(func(kdtree.NodeView) bool {
		visited++
		return visited < 10
	})
	assert.Equal(t, 10, visited)
}

func TestTree_MatchesBruteForce(t *testing.T) {
	for _, grid := range []bool{false, true} {
		rng := rand.New(rand.NewSource(42))
		points := samplePoints(rng, 2000, grid)
		tree, set := build(t, points)
		require.Equal(t, set.Size(), tree.Size())

		for _, p := range points {
			p := p
			ok, err := tree.Contains(&p)
			require.NoError(t, err)
			require.True(t, ok)
		}
		for _, q := range samplePoints(rng, 200, false) {
			q := q
			want, _ := set.Contains(&q)
			got, err := tree.Contains(&q)
			require.NoError(t, err)
			require.Equal(t, want, got, "contains %v", q)

			wantNear, _, _ := set.Nearest(&q)
			gotNear, ok, err := tree.Nearest(&q)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, wantNear.DistanceSquaredTo(q), gotNear.DistanceSquaredTo(q), "nearest to %v", q)
		}
		for i := 0; i < 200; i++ {
			a, b := samplePoints(rng, 2, grid)[0], samplePoints(rng, 2, grid)[1]
			r := geo.Rect{XMin: math.Min(a.X, b.X), YMin: math.Min(a.Y, b.Y), XMax: math.Max(a.X, b.X), YMax: math.Max(a.Y, b.Y)}
			want, _ := set.Range(&r)
			got, err := tree.Range(&r)
			require.NoError(t, err)
			require.ElementsMatch(t, want, got, "range %v", r)
		}
	}
}

func TestTree_RangeEdgeCases(t *testing.T) {
	tree, _ := build(t, []geo.Point{{X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.2}, {X: 0.2, Y: 0.5}, {X: 0.8, Y: 0.8}})

	point, err := tree.Range(&geo.Rect{XMin: 0.5, YMin: 0.2, XMax: 0.5, YMax: 0.2})
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{{X: 0.5, Y: 0.2}}, point, "degenerate rect on a stored point")

	line, err := tree.Range(&geo.Rect{XMin: 0.5, YMin: 0, XMax: 0.5, YMax: 1})
	require.NoError(t, err)
	assert.ElementsMatch(t, []geo.Point{{X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.2}}, line, "zero-width rect along a split line")

	edge, err := tree.Range(&geo.Rect{XMin: 0.2, YMin: 0.5, XMax: 0.8, YMax: 0.8})
	require.NoError(t, err)
	assert.ElementsMatch(t, []geo.Point{{X: 0.5, Y: 0.5}, {X: 0.2, Y: 0.5}, {X: 0.8, Y: 0.8}}, edge)

	outside, err := tree.Range(&geo.Rect{XMin: 2, YMin: 2, XMax: 3, YMax: 3})
	require.NoError(t, err)
	assert.Empty(t, outside)
}

func TestTree_NearestOutsideBounds(t *testing.T) {
	tree, _ := build(t, []geo.Point{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.9}, {X: 0.9, Y: 0.1}})
	got, ok, err := tree.Nearest(&geo.Point{X: 3, Y: -2})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, geo.Point{X: 0.9, Y: 0.1}, got)

	same, ok, err := tree.Nearest(&geo.Point{X: 0.9, Y: 0.9})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, geo.Point{X: 0.9, Y: 0.9}, same)
}

func TestTree_KNearest(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	points := samplePoints(rng, 300, false)
	tree, _ := build(t, points)

	q := geo.Point{X: 0.4, Y: 0.6}
	got, err := tree.KNearest(&q, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)

	dists := make([]float64, len(points))
	for i, p := range points {
		dists[i] = p.DistanceTo(q)
	}
	sort.Float64s(dists)
	for i, n := range got {
		assert.InDelta(t, dists[i], n.Distance, 1e-12)
		assert.InDelta(t, n.Point.DistanceTo(q), n.Distance, 1e-12)
	}

	all, err := tree.KNearest(&q, 1000)
	require.NoError(t, err)
	assert.Len(t, all, tree.Size())

	none, err := tree.KNearest(&q, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTree_MarshalBinary(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	tree, _ := build(t, samplePoints(rng, 100, true))

	data, err := tree.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, kdtree.IsTreeBlob(data))

	restored := kdtree.New()
	require.NoError(t, restored.UnmarshalBinary(data))
	assert.Equal(t, tree.Size(), restored.Size())
	assert.Equal(t, tree.Points(), restored.Points())
	assert.Equal(t, collect(tree), collect(restored), "shape must survive the round trip")

	wide := kdtree.New(kdtree.WithBounds(geo.Rect{XMin: -1, YMin: -1, XMax: 1, YMax: 1}))
	require.NoError(t, wide.Insert(&geo.Point{X: -0.5, Y: 0.5}))
	data, err = wide.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, restored.UnmarshalBinary(data))
	assert.Equal(t, wide.Bounds(), restored.Bounds())
	assert.Equal(t, 1, restored.Size())

	require.Error(t, restored.UnmarshalBinary([]byte("nope")))
	require.Error(t, restored.UnmarshalBinary(data[:len(data)-3]))
	assert.Equal(t, 1, restored.Size(), "failed decode keeps previous content")
}

func collect(tree *kdtree.Tree) []kdtree.NodeView {
	var out []kdtree.NodeView
	tree.Walk(func(v kdtree.NodeView) bool {
		out = append(out, v)
		return true
	})
	return out
}

func TestTree_Height(t *testing.T) {
	tree := kdtree.New()
	require.NoError(t, tree.Insert(&geo.Point{X: 0.5, Y: 0.5}))
	assert.Equal(t, 1, tree.Height())
	// strictly increasing x and y: every point routes right of the previous one
	require.NoError(t, tree.InsertAll([]geo.Point{{X: 0.6, Y: 0.6}, {X: 0.7, Y: 0.7}, {X: 0.8, Y: 0.8}}))
	assert.Equal(t, 4, tree.Height())
	require.NoError(t, tree.Insert(&geo.Point{X: 0.1, Y: 0.1}))
	assert.Equal(t, 4, tree.Height())
}
