package projcache

import (
	"context"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"redline/api/internal/metrics"
	"redline/api/internal/review"
)

const DefaultSize = 1024

// Memory is a bounded in-process LRU cache.
type Memory struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, review.Projection]
	// fences records the generation of the latest invalidation per clause.
	fences *simplelru.LRU[string, uint64]
	// floor is the highest generation evicted from fences; a ticket older
	// than the floor can no longer be checked and is refused.
	floor uint64
	gen   uint64
}

func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultSize
	}
	m := &Memory{}
	entries, err := simplelru.NewLRU[string, review.Projection](size, nil)
	if err != nil {
		return nil, err
	}
	fences, err := simplelru.NewLRU[string, uint64](size, func(_ string, gen uint64) {
		// runs inside fences.Add, with mu held
		if gen > m.floor {
			m.floor = gen
		}
	})
	if err != nil {
		return nil, err
	}
	m.entries = entries
	m.fences = fences
	return m, nil
}

func (m *Memory) Get(_ context.Context, clauseID string) (review.Projection, Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.entries.Get(clauseID); ok {
		metrics.CacheLookups.WithLabelValues("memory", "hit").Inc()
		return p, Ticket(m.gen), true
	}
	metrics.CacheLookups.WithLabelValues("memory", "miss").Inc()
	return review.Projection{}, Ticket(m.gen), false
}

func (m *Memory) Put(_ context.Context, clauseID string, ticket Ticket, p review.Projection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if uint64(ticket) < m.floor {
		metrics.CacheStalePuts.WithLabelValues("memory").Inc()
		return
	}
	if fenced, ok := m.fences.Peek(clauseID); ok && fenced > uint64(ticket) {
		metrics.CacheStalePuts.WithLabelValues("memory").Inc()
		return
	}
	m.entries.Add(clauseID, p)
}

func (m *Memory) Invalidate(_ context.Context, clauseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.fences.Add(clauseID, m.gen)
	m.entries.Remove(clauseID)
	metrics.CacheInvalidations.WithLabelValues("memory").Inc()
	return nil
}

// Len reports the number of cached projections.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}
