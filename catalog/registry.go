package catalog

import "sync"

// registry maps table names to the catalogs serving them, across connections.
var registry = struct {
	mu      sync.RWMutex
	byTable map[string][]*Catalog
}{byTable: make(map[string][]*Catalog)}

func register(table string, c *Catalog) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for _, existing := range registry.byTable[table] {
		if existing == c {
			return
		}
	}
	registry.byTable[table] = append(registry.byTable[table], c)
}

func unregister(table string, c *Catalog) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	list := registry.byTable[table]
	for i, existing := range list {
		if existing == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(registry.byTable, table)
		return
	}
	registry.byTable[table] = list
}

// Lookup returns the first catalog registered for table.
func Lookup(table string) *Catalog {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	if list := registry.byTable[table]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// InvalidateTable drops in-memory indexes of dataset (all datasets when
// empty) in every catalog registered for table.
func InvalidateTable(table, dataset string) int {
	registry.mu.RLock()
	list := append([]*Catalog(nil), registry.byTable[table]...)
	registry.mu.RUnlock()
	count := 0
	for _, c := range list {
		count += c.Invalidate(dataset)
	}
	return count
}
