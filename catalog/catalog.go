package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/index"
	"github.com/viant/sqlite-kd/index/bruteforce"
	"github.com/viant/sqlite-kd/index/kdtree"
	"github.com/viant/sqlite-kd/internal/logger"
	"github.com/viant/sqlite-kd/internal/metrics"
	"github.com/viant/sqlite-kd/store"
)

// Kind selects the index implementation built per dataset.
type Kind string

const (
	// KindKD builds a kdtree.Tree.
	KindKD Kind = "kd"
	// KindBrute builds a bruteforce.Set.
	KindBrute Kind = "brute"
)

// ParseKind maps a name to a Kind; the empty string selects KindKD.
func ParseKind(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case "", KindKD:
		return KindKD, nil
	case KindBrute:
		return KindBrute, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Catalog caches one index per dataset over a point store.
type Catalog struct {
	name      string
	store     store.Store
	snapshots store.SnapshotStore
	kind      Kind
	bounds    geo.Rect
	log       *slog.Logger

	mu        sync.RWMutex
	entries   map[string]*entry
	listeners []func(datasets []string)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithName registers the catalog under name so InvalidateTable reaches it.
func WithName(name string) Option {
	return func(c *Catalog) { c.name = name }
}

// WithSnapshots persists built indexes in s.
func WithSnapshots(s store.SnapshotStore) Option {
	return func(c *Catalog) { c.snapshots = s }
}

// WithKind selects the index implementation.
func WithKind(k Kind) Option {
	return func(c *Catalog) { c.kind = k }
}

// WithBounds sets the kd-tree bounding rectangle; the default is the unit square.
func WithBounds(r geo.Rect) Option {
	return func(c *Catalog) { c.bounds = r }
}

// WithLogger overrides the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// New creates a catalog over s.
func New(s store.Store, opts ...Option) (*Catalog, error) {
	if s == nil {
		return nil, ErrNilStore
	}
	c := &Catalog{
		store:   s,
		kind:    KindKD,
		bounds:  geo.UnitSquare,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := ParseKind(string(c.kind)); err != nil {
		return nil, err
	}
	if !c.bounds.Valid() {
		return nil, fmt.Errorf("catalog: %w", geo.ErrInvalidRect)
	}
	if c.log == nil {
		c.log = logger.L()
	}
	if c.name != "" {
		register(c.name, c)
	}
	return c, nil
}

// Name returns the registration name, if any.
func (c *Catalog) Name() string { return c.name }

// Kind returns the index kind.
func (c *Catalog) Kind() Kind { return c.kind }

// Close drops every cached index and removes the catalog from the registry.
func (c *Catalog) Close() error {
	if c.name != "" {
		unregister(c.name, c)
	}
	c.invalidate("", false)
	return nil
}

func (c *Catalog) newIndex() index.Index {
	if c.kind == KindBrute {
		return bruteforce.New()
	}
	return kdtree.New(kdtree.WithBounds(c.bounds))
}

func (c *Catalog) entry(dataset string) *entry {
	c.mu.RLock()
	e := c.entries[dataset]
	c.mu.RUnlock()
	if e != nil {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e = c.entries[dataset]; e == nil {
		e = newEntry()
		c.entries[dataset] = e
	}
	return e
}

func (c *Catalog) lookup(dataset string) *entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[dataset]
}

// ensure returns the dataset entry once it holds a built index. A build that
// overlaps a change to the dataset is discarded and started again.
func (c *Catalog) ensure(ctx context.Context, dataset string) (*entry, error) {
	e := c.entry(dataset)
	for {
		gen, wait, ok := e.startBuild()
		if !ok {
			if wait == nil {
				return e, nil
			}
			if err := waitForBuild(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		idx, rebuilt, err := c.build(ctx, dataset, e)
		if !e.finishBuild(idx, gen) {
			if err != nil {
				return nil, err
			}
			c.log.Debug("index_build_discarded", "catalog", c.name, "dataset", dataset)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		if rebuilt {
			c.persist(ctx, dataset, e, gen)
		}
		return e, nil
	}
}

// read runs fn against the dataset index under its read lock.
func (c *Catalog) read(ctx context.Context, dataset string, fn func(index.Index) error) error {
	if dataset == "" {
		return store.ErrDatasetRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		e, err := c.ensure(ctx, dataset)
		if err != nil {
			return err
		}
		e.mu.RLock()
		if idx := e.idx; idx != nil {
			err = fn(idx)
			e.mu.RUnlock()
			return err
		}
		e.mu.RUnlock()
		// invalidated between build and read
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// build loads the dataset index from its snapshot, or rebuilds it from the
// store; rebuilt reports the latter.
func (c *Catalog) build(ctx context.Context, dataset string, e *entry) (idx index.Index, rebuilt bool, err error) {
	start := time.Now()
	e.snapMu.Lock()
	idx, ok := c.loadSnapshot(ctx, dataset)
	e.snapMu.Unlock()
	if ok {
		metrics.IndexBuildsTotal.WithLabelValues("snapshot").Inc()
		metrics.IndexBuildDurationMs.Observe(float64(time.Since(start).Milliseconds()))
		c.log.Debug("index_snapshot_load_ok", "catalog", c.name, "dataset", dataset, "size", idx.Size())
		return idx, false, nil
	}
	records, err := c.store.Points(ctx, dataset)
	if err != nil {
		c.log.Error("index_build_error", "catalog", c.name, "dataset", dataset, "err", err)
		return nil, false, fmt.Errorf("catalog: load %q: %w", dataset, err)
	}
	idx = c.newIndex()
	skipped := 0
	for i := range records {
		if err := idx.Insert(&records[i].Point); err != nil {
			if errors.Is(err, index.ErrOutOfBounds) {
				skipped++
				continue
			}
			return nil, false, err
		}
	}
	if skipped > 0 {
		c.log.Warn("index_build_skipped_points", "catalog", c.name, "dataset", dataset, "count", skipped)
	}
	metrics.IndexBuildsTotal.WithLabelValues("rebuild").Inc()
	metrics.IndexBuildDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	c.log.Info("index_build_ok", "catalog", c.name, "dataset", dataset, "kind", string(c.kind),
		"size", idx.Size(), "duration_ms", time.Since(start).Milliseconds())
	return idx, true, nil
}

func (c *Catalog) loadSnapshot(ctx context.Context, dataset string) (index.Index, bool) {
	if c.snapshots == nil {
		return nil, false
	}
	blob, ok, err := c.snapshots.LoadSnapshot(ctx, dataset)
	if err != nil {
		metrics.SnapshotErrorsTotal.WithLabelValues("load").Inc()
		c.log.Warn("snapshot_load_error", "catalog", c.name, "dataset", dataset, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if c.kind == KindKD && !kdtree.IsTreeBlob(blob) {
		return nil, false
	}
	idx := c.newIndex()
	if err := idx.UnmarshalBinary(blob); err != nil {
		metrics.SnapshotErrorsTotal.WithLabelValues("decode").Inc()
		c.log.Warn("snapshot_decode_error", "catalog", c.name, "dataset", dataset, "err", err)
		return nil, false
	}
	if t, isTree := idx.(*kdtree.Tree); isTree && t.Bounds() != c.bounds {
		c.log.Debug("snapshot_bounds_mismatch", "catalog", c.name, "dataset", dataset,
			"snapshot", t.Bounds().String(), "want", c.bounds.String())
		return nil, false
	}
	return idx, true
}

// persist saves the index installed at gen as the dataset snapshot. A change
// racing the save removes the snapshot again.
func (c *Catalog) persist(ctx context.Context, dataset string, e *entry, gen uint64) {
	if c.snapshots == nil {
		return
	}
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	blob, ok, err := e.marshal(gen)
	if ok {
		err = c.snapshots.SaveSnapshot(ctx, dataset, blob)
	}
	if err != nil {
		metrics.SnapshotErrorsTotal.WithLabelValues("save").Inc()
		c.log.Warn("snapshot_save_error", "catalog", c.name, "dataset", dataset, "err", err)
		return
	}
	if ok && e.generation() != gen {
		c.deleteSnapshot(ctx, dataset)
	}
}

func (c *Catalog) deleteSnapshot(ctx context.Context, dataset string) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.DeleteSnapshot(ctx, dataset); err != nil {
		metrics.SnapshotErrorsTotal.WithLabelValues("delete").Inc()
		c.log.Warn("snapshot_delete_error", "catalog", c.name, "dataset", dataset, "err", err)
	}
}

// Warm builds the dataset index if it is not already in memory.
func (c *Catalog) Warm(ctx context.Context, dataset string) error {
	return c.read(ctx, dataset, func(index.Index) error { return nil })
}

// Add validates and stores records, then inserts them into the live index
// when one is loaded. The persisted snapshot is dropped since it no longer
// reflects the dataset.
func (c *Catalog) Add(ctx context.Context, dataset string, records []store.Record) ([]string, error) {
	if dataset == "" {
		return nil, store.ErrDatasetRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, r := range records {
		if r.Point.IsNaN() || (c.kind == KindKD && !c.bounds.Contains(r.Point)) {
			return nil, fmt.Errorf("catalog: %v not in %v: %w", r.Point, c.bounds, index.ErrOutOfBounds)
		}
	}
	ids, err := c.store.AddPoints(ctx, dataset, records)
	if err != nil {
		return nil, err
	}
	metrics.PointsInsertedTotal.Add(float64(len(records)))
	e := c.entry(dataset)
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	c.deleteSnapshot(ctx, dataset)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if e.idx != nil {
		for i := range records {
			if err := e.idx.Insert(&records[i].Point); err != nil {
				c.log.Warn("index_insert_error", "catalog", c.name, "dataset", dataset, "err", err)
				e.idx = nil
				break
			}
		}
	}
	return ids, nil
}

// Remove deletes a stored record and drops the dataset index; the next query
// rebuilds it from the remaining records.
func (c *Catalog) Remove(ctx context.Context, dataset, id string) error {
	if dataset == "" {
		return store.ErrDatasetRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.store.Remove(ctx, dataset, id); err != nil {
		return err
	}
	e := c.entry(dataset)
	e.snapMu.Lock()
	c.deleteSnapshot(ctx, dataset)
	e.snapMu.Unlock()
	c.Invalidate(dataset)
	return nil
}

// OnInvalidate registers fn to run after every Invalidate with the datasets it
// targeted. fn may run inside a SQL trigger and must not use the database.
func (c *Catalog) OnInvalidate(fn func(datasets []string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Invalidate drops the in-memory index of dataset, or of every dataset when
// dataset is empty, and returns the number of indexes dropped. Snapshots are
// left alone.
func (c *Catalog) Invalidate(dataset string) int {
	return c.invalidate(dataset, true)
}

func (c *Catalog) invalidate(dataset string, notify bool) int {
	c.mu.RLock()
	var (
		targets []*entry
		names   []string
	)
	if dataset == "" {
		for name, e := range c.entries {
			targets = append(targets, e)
			names = append(names, name)
		}
	} else {
		if e := c.entries[dataset]; e != nil {
			targets = append(targets, e)
		}
		names = append(names, dataset)
	}
	var listeners []func([]string)
	if notify {
		listeners = c.listeners
	}
	c.mu.RUnlock()
	count := 0
	for _, e := range targets {
		if e.drop() {
			count++
		}
	}
	for _, fn := range listeners {
		fn(names)
	}
	if count > 0 {
		metrics.IndexInvalidationsTotal.Add(float64(count))
		c.log.Debug("index_invalidated", "catalog", c.name, "dataset", dataset, "count", count)
	}
	return count
}

// Loaded reports whether the dataset index is currently in memory.
func (c *Catalog) Loaded(dataset string) bool {
	e := c.lookup(dataset)
	return e != nil && e.loaded()
}

// Size returns the number of distinct points indexed for dataset.
func (c *Catalog) Size(ctx context.Context, dataset string) (int, error) {
	var n int
	err := c.read(ctx, dataset, func(idx index.Index) error {
		n = idx.Size()
		return nil
	})
	return n, err
}

// Contains reports whether p is indexed for dataset.
func (c *Catalog) Contains(ctx context.Context, dataset string, p geo.Point) (bool, error) {
	metrics.QueriesTotal.WithLabelValues("contains").Inc()
	var ok bool
	err := c.read(ctx, dataset, func(idx index.Index) (err error) {
		ok, err = idx.Contains(&p)
		return err
	})
	return ok, err
}

// Range returns the indexed points of dataset inside r, boundary inclusive.
func (c *Catalog) Range(ctx context.Context, dataset string, r geo.Rect) ([]geo.Point, error) {
	metrics.QueriesTotal.WithLabelValues("range").Inc()
	var out []geo.Point
	err := c.read(ctx, dataset, func(idx index.Index) (err error) {
		out, err = idx.Range(&r)
		return err
	})
	return out, err
}

// Nearest returns an indexed point of dataset closest to p; ok is false when
// the dataset is empty.
func (c *Catalog) Nearest(ctx context.Context, dataset string, p geo.Point) (geo.Point, bool, error) {
	metrics.QueriesTotal.WithLabelValues("nearest").Inc()
	var (
		out geo.Point
		ok  bool
	)
	err := c.read(ctx, dataset, func(idx index.Index) (err error) {
		out, ok, err = idx.Nearest(&p)
		return err
	})
	return out, ok, err
}

// KNearest returns up to k indexed points of dataset ordered by distance to p.
func (c *Catalog) KNearest(ctx context.Context, dataset string, p geo.Point, k int) ([]index.Neighbor, error) {
	metrics.QueriesTotal.WithLabelValues("knn").Inc()
	var out []index.Neighbor
	err := c.read(ctx, dataset, func(idx index.Index) error {
		kn, ok := idx.(index.KNearester)
		if !ok {
			return fmt.Errorf("catalog: %s index has no k-nearest search", c.kind)
		}
		var err error
		out, err = kn.KNearest(&p, k)
		return err
	})
	return out, err
}

// Tree returns a copy of the dataset kd-tree for rendering or export; ok is
// false for brute-force catalogs.
func (c *Catalog) Tree(ctx context.Context, dataset string) (*kdtree.Tree, bool, error) {
	var (
		out *kdtree.Tree
		ok  bool
	)
	err := c.read(ctx, dataset, func(idx index.Index) error {
		t, isTree := idx.(*kdtree.Tree)
		if !isTree {
			return nil
		}
		blob, err := t.MarshalBinary()
		if err != nil {
			return err
		}
		out = kdtree.New()
		ok = true
		return out.UnmarshalBinary(blob)
	})
	return out, ok, err
}
