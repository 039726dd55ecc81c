package catalog

import (
	"context"
	"sync"

	"github.com/viant/sqlite-kd/index"
)

// entry guards one dataset's index. Queries hold the read lock while they use
// the index; inserts and invalidation take the write lock.
//
// gen advances on every change to the dataset seen by the catalog. A build
// installs its index only when gen still equals the value it started from.
// snapMu orders snapshot loads and saves against the snapshot deletes of
// Add and Remove; it is always taken before mu.
type entry struct {
	mu       sync.RWMutex
	idx      index.Index
	gen      uint64
	building chan struct{}

	snapMu sync.Mutex
}

func newEntry() *entry { return &entry{} }

func (e *entry) loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx != nil
}

func (e *entry) generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// drop releases the index and reports whether one was loaded.
func (e *entry) drop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	had := e.idx != nil
	e.idx = nil
	e.gen++
	return had
}

// startBuild claims the build of an unloaded entry and returns the generation
// it starts from. When another build runs, wait is closed once it ends.
func (e *entry) startBuild() (gen uint64, wait <-chan struct{}, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idx != nil {
		return 0, nil, false
	}
	if e.building != nil {
		return 0, e.building, false
	}
	e.building = make(chan struct{})
	return e.gen, nil, true
}

// waitForBuild blocks until wait is closed or ctx is done.
func waitForBuild(ctx context.Context, wait <-chan struct{}) error {
	if wait == nil {
		return nil
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finishBuild ends the build started at gen and installs idx unless the
// dataset changed since.
func (e *entry) finishBuild(idx index.Index, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	close(e.building)
	e.building = nil
	if idx == nil || e.gen != gen {
		return false
	}
	e.idx = idx
	return true
}

// marshal serializes the index if it is still the one of generation gen.
func (e *entry) marshal(gen uint64) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen != gen || e.idx == nil {
		return nil, false, nil
	}
	blob, err := e.idx.MarshalBinary()
	return blob, err == nil, err
}
