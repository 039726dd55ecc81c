package catalog

import (
	"context"
	"database/sql"
	"math/rand"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/sqlite-kd/engine"
	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/index"
	"github.com/viant/sqlite-kd/index/kdtree"
	"github.com/viant/sqlite-kd/internal/metrics"
	"github.com/viant/sqlite-kd/store"
	"github.com/viant/sqlite-kd/store/badgerstore"
)

func openStore(t *testing.T) (*sql.DB, *store.SQLiteStore, *store.SQLiteSnapshots) {
	t.Helper()
	db, err := engine.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	st, err := store.NewSQLiteStore(db)
	require.NoError(t, err)
	snaps, err := store.NewSQLiteSnapshots(db, st.Table())
	require.NoError(t, err)
	return db, st, snaps
}

func records(points ...geo.Point) []store.Record {
	out := make([]store.Record, len(points))
	for i, p := range points {
		out[i] = store.Record{Point: p}
	}
	return out
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindKD, k)
	k, err = ParseKind(" Brute ")
	require.NoError(t, err)
	assert.Equal(t, KindBrute, k)
	_, err = ParseKind("cover")
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = New(nil)
	require.ErrorIs(t, err, ErrNilStore)
}

func TestCatalog_BuildAndQuery(t *testing.T) {
	ctx := context.Background()
	_, st, snaps := openStore(t)
	_, err := st.AddPoints(ctx, "ds", records(
		geo.Point{X: 0.5, Y: 0.5}, geo.Point{X: 0.25, Y: 0.75}, geo.Point{X: 0.75, Y: 0.25}, geo.Point{X: 0.5, Y: 0.5},
	))
	require.NoError(t, err)

	c, err := New(st, WithSnapshots(snaps))
	require.NoError(t, err)
	assert.False(t, c.Loaded("ds"))

	size, err := c.Size(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, 3, size)
	assert.True(t, c.Loaded("ds"))

	blob, ok, err := snaps.LoadSnapshot(ctx, "ds")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, kdtree.IsTreeBlob(blob))

	ok, err = c.Contains(ctx, "ds", geo.Point{X: 0.25, Y: 0.75})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := c.Range(ctx, "ds", geo.Rect{XMin: 0, YMin: 0, XMax: 0.6, YMax: 0.6})
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{{X: 0.5, Y: 0.5}}, got)

	nearest, ok, err := c.Nearest(ctx, "ds", geo.Point{X: 0.6, Y: 0.6})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, geo.Point{X: 0.5, Y: 0.5}, nearest)

	knn, err := c.KNearest(ctx, "ds", geo.Point{X: 0, Y: 0}, 2)
	require.NoError(t, err)
	require.Len(t, knn, 2)
	assert.Equal(t, geo.Point{X: 0.5, Y: 0.5}, knn[0].Point)

	tree, ok, err := c.Tree(ctx, "ds")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, tree.Size())

	_, err = c.Size(ctx, "")
	require.ErrorIs(t, err, store.ErrDatasetRequired)
}

func TestCatalog_EmptyDataset(t *testing.T) {
	ctx := context.Background()
	_, st, _ := openStore(t)
	c, err := New(st)
	require.NoError(t, err)

	_, ok, err := c.Nearest(ctx, "none", geo.Point{})
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := c.Range(ctx, "none", geo.UnitSquare)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCatalog_SnapshotPreferredOverRebuild(t *testing.T) {
	ctx := context.Background()
	_, st, snaps := openStore(t)
	_, err := st.AddPoints(ctx, "ds", records(geo.Point{X: 0.1, Y: 0.1}, geo.Point{X: 0.2, Y: 0.2}))
	require.NoError(t, err)

	first, err := New(st, WithSnapshots(snaps))
	require.NoError(t, err)
	require.NoError(t, first.Warm(ctx, "ds"))

	// bypass the catalog so the snapshot goes stale
	_, err = st.AddPoints(ctx, "ds", records(geo.Point{X: 0.3, Y: 0.3}))
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.IndexBuildsTotal.WithLabelValues("snapshot"))
	second, err := New(st, WithSnapshots(snaps))
	require.NoError(t, err)
	size, err := second.Size(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IndexBuildsTotal.WithLabelValues("snapshot")))

	require.NoError(t, snaps.DeleteSnapshot(ctx, "ds"))
	assert.Equal(t, 1, second.Invalidate("ds"))
	size, err = second.Size(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestCatalog_CorruptSnapshotRebuilds(t *testing.T) {
	ctx := context.Background()
	_, st, snaps := openStore(t)
	_, err := st.AddPoints(ctx, "ds", records(geo.Point{X: 0.1, Y: 0.1}))
	require.NoError(t, err)
	require.NoError(t, snaps.SaveSnapshot(ctx, "ds", []byte("KDT1 truncated")))

	c, err := New(st, WithSnapshots(snaps))
	require.NoError(t, err)
	size, err := c.Size(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	blob, ok, err := snaps.LoadSnapshot(ctx, "ds")
	require.NoError(t, err)
	require.True(t, ok)
	restored := kdtree.New()
	require.NoError(t, restored.UnmarshalBinary(blob))
	assert.Equal(t, 1, restored.Size())
}

func TestCatalog_AddIncremental(t *testing.T) {
	ctx := context.Background()
	_, st, snaps := openStore(t)
	c, err := New(st, WithSnapshots(snaps))
	require.NoError(t, err)

	ids, err := c.Add(ctx, "ds", records(geo.Point{X: 0.5, Y: 0.5}))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.NoError(t, c.Warm(ctx, "ds"))
	_, ok, err := snaps.LoadSnapshot(ctx, "ds")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.Add(ctx, "ds", records(geo.Point{X: 0.9, Y: 0.1}, geo.Point{X: 0.5, Y: 0.5}))
	require.NoError(t, err)
	assert.True(t, c.Loaded("ds"))
	_, ok, err = snaps.LoadSnapshot(ctx, "ds")
	require.NoError(t, err)
	assert.False(t, ok)

	size, err := c.Size(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	found, err := c.Contains(ctx, "ds", geo.Point{X: 0.9, Y: 0.1})
	require.NoError(t, err)
	assert.True(t, found)

	count, err := st.Count(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCatalog_AddOutOfBounds(t *testing.T) {
	ctx := context.Background()
	_, st, _ := openStore(t)
	c, err := New(st)
	require.NoError(t, err)

	_, err = c.Add(ctx, "ds", records(geo.Point{X: 0.5, Y: 0.5}, geo.Point{X: 1.5, Y: 0.5}))
	require.ErrorIs(t, err, index.ErrOutOfBounds)
	require.ErrorIs(t, err, index.ErrInvalidArgument)
	count, err := st.Count(ctx, "ds")
	require.NoError(t, err)
	assert.Zero(t, count)

	wide, err := New(st, WithBounds(geo.Rect{XMin: -10, YMin: -10, XMax: 10, YMax: 10}))
	require.NoError(t, err)
	_, err = wide.Add(ctx, "ds", records(geo.Point{X: 1.5, Y: -3}))
	require.NoError(t, err)
	ok, err := wide.Contains(ctx, "ds", geo.Point{X: 1.5, Y: -3})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = New(st, WithBounds(geo.Rect{XMin: 1, XMax: 0}))
	require.ErrorIs(t, err, geo.ErrInvalidRect)
}

func TestCatalog_Remove(t *testing.T) {
	ctx := context.Background()
	_, st, snaps := openStore(t)
	c, err := New(st, WithSnapshots(snaps))
	require.NoError(t, err)

	ids, err := c.Add(ctx, "ds", []store.Record{
		{ID: "a", Point: geo.Point{X: 0.1, Y: 0.1}},
		{ID: "b", Point: geo.Point{X: 0.2, Y: 0.2}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	require.NoError(t, c.Warm(ctx, "ds"))

	require.NoError(t, c.Remove(ctx, "ds", "a"))
	assert.False(t, c.Loaded("ds"))
	ok, err := c.Contains(ctx, "ds", geo.Point{X: 0.1, Y: 0.1})
	require.NoError(t, err)
	assert.False(t, ok)

	require.ErrorIs(t, c.Remove(ctx, "ds", "missing"), store.ErrNotFound)
}

func TestCatalog_BruteMatchesKD(t *testing.T) {
	ctx := context.Background()
	_, st, _ := openStore(t)
	rng := rand.New(rand.NewSource(7))
	var points []geo.Point
	for i := 0; i < 300; i++ {
		points = append(points, geo.Point{X: float64(rng.Intn(20)) / 20, Y: float64(rng.Intn(20)) / 20})
	}
	_, err := st.AddPoints(ctx, "ds", records(points...))
	require.NoError(t, err)

	kd, err := New(st)
	require.NoError(t, err)
	brute, err := New(st, WithKind(KindBrute))
	require.NoError(t, err)

	kdSize, err := kd.Size(ctx, "ds")
	require.NoError(t, err)
	bruteSize, err := brute.Size(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, bruteSize, kdSize)

	r := geo.Rect{XMin: 0.2, YMin: 0.1, XMax: 0.55, YMax: 0.8}
	kdRange, err := kd.Range(ctx, "ds", r)
	require.NoError(t, err)
	bruteRange, err := brute.Range(ctx, "ds", r)
	require.NoError(t, err)
	assert.ElementsMatch(t, bruteRange, kdRange)

	for i := 0; i < 50; i++ {
		q := geo.Point{X: rng.Float64(), Y: rng.Float64()}
		a, _, err := kd.Nearest(ctx, "ds", q)
		require.NoError(t, err)
		b, _, err := brute.Nearest(ctx, "ds", q)
		require.NoError(t, err)
		assert.Equal(t, b.DistanceSquaredTo(q), a.DistanceSquaredTo(q))

		ka, err := kd.KNearest(ctx, "ds", q, 5)
		require.NoError(t, err)
		kb, err := brute.KNearest(ctx, "ds", q, 5)
		require.NoError(t, err)
		require.Len(t, ka, len(kb))
		for j := range ka {
			assert.InDelta(t, kb[j].Distance, ka[j].Distance, 1e-12)
		}
	}

	_, ok, err := brute.Tree(ctx, "ds")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalog_ConcurrentFirstQueriesBuildOnce(t *testing.T) {
	ctx := context.Background()
	_, st, _ := openStore(t)
	_, err := st.AddPoints(ctx, "ds", records(geo.Point{X: 0.1, Y: 0.9}, geo.Point{X: 0.9, Y: 0.1}))
	require.NoError(t, err)
	c, err := New(st)
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.IndexBuildsTotal.WithLabelValues("rebuild"))
	var wg sync.WaitGroup
	sizes := make([]int, 16)
	errs := make([]error, 16)
	for i := range sizes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sizes[i], errs[i] = c.Size(ctx, "ds")
		}(i)
	}
	wg.Wait()
	for i := range sizes {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, sizes[i])
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IndexBuildsTotal.WithLabelValues("rebuild")))
}

func TestInvalidateTable(t *testing.T) {
	ctx := context.Background()
	_, st, _ := openStore(t)
	_, err := st.AddPoints(ctx, "eu", records(geo.Point{X: 0.1, Y: 0.1}))
	require.NoError(t, err)
	_, err = st.AddPoints(ctx, "us", records(geo.Point{X: 0.2, Y: 0.2}))
	require.NoError(t, err)

	c, err := New(st, WithName("registry_test"))
	require.NoError(t, err)
	assert.Same(t, c, Lookup("registry_test"))
	require.NoError(t, c.Warm(ctx, "eu"))
	require.NoError(t, c.Warm(ctx, "us"))

	assert.Equal(t, 1, InvalidateTable("registry_test", "eu"))
	assert.False(t, c.Loaded("eu"))
	assert.True(t, c.Loaded("us"))
	assert.Equal(t, 1, InvalidateTable("registry_test", ""))
	assert.Equal(t, 0, InvalidateTable("other_table", ""))

	require.NoError(t, c.Close())
	assert.Nil(t, Lookup("registry_test"))
}

func TestCatalog_BadgerSnapshots(t *testing.T) {
	ctx := context.Background()
	_, st, _ := openStore(t)
	kv, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	defer kv.Close()
	snaps := kv.Snapshots(st.Table())

	c, err := New(st, WithSnapshots(snaps))
	require.NoError(t, err)
	_, err = c.Add(ctx, "ds", records(geo.Point{X: 0.4, Y: 0.6}))
	require.NoError(t, err)
	require.NoError(t, c.Warm(ctx, "ds"))

	blob, ok, err := snaps.LoadSnapshot(ctx, "ds")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, kdtree.IsTreeBlob(blob))
}

func TestCatalog_SnapshotBoundsMismatch(t *testing.T) {
	ctx := context.Background()
	_, st, snaps := openStore(t)
	unit, err := New(st, WithSnapshots(snaps))
	require.NoError(t, err)
	_, err = unit.Add(ctx, "ds", records(geo.Point{X: 0.5, Y: 0.5}))
	require.NoError(t, err)
	require.NoError(t, unit.Warm(ctx, "ds"))
	_, ok, err := snaps.LoadSnapshot(ctx, "ds")
	require.NoError(t, err)
	require.True(t, ok)

	bounds := geo.Rect{XMin: -1, YMin: -1, XMax: 1, YMax: 1}
	wide, err := New(st, WithSnapshots(snaps), WithBounds(bounds))
	require.NoError(t, err)
	tree, ok, err := wide.Tree(ctx, "ds")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bounds, tree.Bounds())
	assert.Equal(t, 1, tree.Size())
}

// gatedStore holds the first Points call after it has read the rows until
// gate is closed.
type gatedStore struct {
	*store.SQLiteStore
	read chan struct{}
	gate chan struct{}
	once sync.Once
}

func newGatedStore(st *store.SQLiteStore) *gatedStore {
	return &gatedStore{SQLiteStore: st, read: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedStore) Points(ctx context.Context, dataset string) ([]store.Record, error) {
	records, err := g.SQLiteStore.Points(ctx, dataset)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.read)
		<-g.gate
	}
	return records, err
}

func TestCatalog_AddDuringFirstBuild(t *testing.T) {
	ctx := context.Background()
	_, st, snaps := openStore(t)
	_, err := st.AddPoints(ctx, "ds", records(geo.Point{X: 0.1, Y: 0.1}))
	require.NoError(t, err)
	gs := newGatedStore(st)
	c, err := New(gs, WithSnapshots(snaps))
	require.NoError(t, err)

	type result struct {
		size int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		n, err := c.Size(ctx, "ds")
		done <- result{n, err}
	}()
	<-gs.read
	_, err = c.Add(ctx, "ds", records(geo.Point{X: 0.9, Y: 0.9}))
	require.NoError(t, err)
	close(gs.gate)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 2, res.size)
	ok, err := c.Contains(ctx, "ds", geo.Point{X: 0.9, Y: 0.9})
	require.NoError(t, err)
	assert.True(t, ok)

	// reload from the persisted snapshot
	assert.Equal(t, 1, c.Invalidate("ds"))
	size, err := c.Size(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	ok, err = c.Contains(ctx, "ds", geo.Point{X: 0.9, Y: 0.9})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCatalog_WaitForBuildHonoursContext(t *testing.T) {
	ctx := context.Background()
	_, st, _ := openStore(t)
	_, err := st.AddPoints(ctx, "ds", records(geo.Point{X: 0.1, Y: 0.1}))
	require.NoError(t, err)
	gs := newGatedStore(st)
	c, err := New(gs)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Size(ctx, "ds")
		done <- err
	}()
	<-gs.read

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.Size(cancelled, "ds")
	require.ErrorIs(t, err, context.Canceled)

	close(gs.gate)
	require.NoError(t, <-done)
	size, err := c.Size(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestCatalog_OnInvalidate(t *testing.T) {
	ctx := context.Background()
	_, st, _ := openStore(t)
	c, err := New(st)
	require.NoError(t, err)
	_, err = c.Add(ctx, "eu", records(geo.Point{X: 0.1, Y: 0.1}))
	require.NoError(t, err)
	require.NoError(t, c.Warm(ctx, "eu"))

	var got [][]string
	c.OnInvalidate(func(datasets []string) { got = append(got, datasets) })

	assert.Equal(t, 0, c.Invalidate("us"))
	assert.Equal(t, 1, c.Invalidate(""))
	ids, err := c.Add(ctx, "eu", records(geo.Point{X: 0.2, Y: 0.2}))
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "eu", ids[0]))
	require.NoError(t, c.Close())
	assert.Equal(t, [][]string{{"us"}, {"eu"}, {"eu"}}, got)
}
