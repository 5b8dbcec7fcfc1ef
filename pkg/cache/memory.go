package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/chainlens/nlquery/pkg/types"
)

type memoryEntry struct {
	types.CacheEntry
	seq int
}

// MemoryBackend is an in-process contracts.CacheBackend, used by tests
// and by deployments that don't need cross-instance cache sharing.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[types.NormalizedKey]*memoryEntry
	nextSeq int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[types.NormalizedKey]*memoryEntry)}
}

func (m *MemoryBackend) Get(_ context.Context, key types.NormalizedKey) (types.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return types.CacheEntry{}, false, nil
	}
	return e.CacheEntry, true, nil
}

func (m *MemoryBackend) Store(_ context.Context, key types.NormalizedKey, sparql, originalQuery string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{seq: m.nextSeq}
		m.nextSeq++
		m.entries[key] = e
	}
	e.SPARQLRaw = sparql
	e.OriginalQuery = originalQuery
	e.NormalizedQuery = key
	return nil
}

func (m *MemoryBackend) IncrementCount(_ context.Context, key types.NormalizedKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	e.Count++
	return nil
}

func (m *MemoryBackend) Popular(_ context.Context, limit int) ([]types.PopularQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*memoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].seq < all[j].seq
	})

	if limit > len(all) {
		limit = len(all)
	}
	results := make([]types.PopularQuery, 0, limit)
	for _, e := range all[:limit] {
		results = append(results, types.PopularQuery{
			OriginalQuery:   e.OriginalQuery,
			NormalizedQuery: string(e.NormalizedQuery),
			Count:           e.Count,
		})
	}
	return results, nil
}
