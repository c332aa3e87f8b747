// Package factorcache memoizes per-day factor panels. It is the only shared
// mutable resource across concurrent runs: entries are immutable once
// written, so reads need no coordination beyond the map lock, and a miss
// computation is idempotent so two concurrent fills of the same key are
// safe (last writer wins).
package factorcache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/observability"
)

// Cache is the injected abstraction beneath the factor panel builder.
// A nil Cache degrades to direct computation.
type Cache interface {
	// Get returns the panel for a key, or false on miss.
	Get(key Key) (*domain.FactorPanel, bool)

	// Put stores an immutable panel under a key.
	Put(key Key, panel *domain.FactorPanel)
}

// Key identifies one cached panel by date, filter set and factor set.
type Key struct {
	Day     int64  // unix of UTC midnight
	Filters string // canonical filter string
	Factors string // canonical factor list
}

// KeyFor builds a canonical key. Factor order does not matter.
func KeyFor(date time.Time, filter domain.UniverseFilter, factors []string) Key {
	sorted := make([]string, len(factors))
	copy(sorted, factors)
	sort.Strings(sorted)
	return Key{
		Day:     domain.Midnight(date).Unix(),
		Filters: filter.CanonicalKey(),
		Factors: strings.Join(sorted, ","),
	}
}

type entry struct {
	panel     *domain.FactorPanel
	expiresAt time.Time
}

// Memory is an in-memory Cache with TTL and max-entry eviction. Eviction
// is deterministic: earliest expiry first, ties by key order.
type Memory struct {
	mu         sync.RWMutex
	data       map[Key]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits   uint64
	misses uint64
}

// Options configures a Memory cache.
type Options struct {
	TTL        time.Duration // zero means entries never expire
	MaxEntries int           // zero means unbounded
	Now        func() time.Time
}

// NewMemory creates an in-memory cache.
func NewMemory(opts Options) *Memory {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Memory{
		data:       make(map[Key]entry),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        now,
	}
}

// Get returns the cached panel if present and not expired.
func (m *Memory) Get(key Key) (*domain.FactorPanel, bool) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()

	if ok && (m.ttl == 0 || m.now().Before(e.expiresAt)) {
		m.mu.Lock()
		m.hits++
		m.mu.Unlock()
		observability.RecordCacheHit()
		return e.panel, true
	}

	m.mu.Lock()
	m.misses++
	if ok { // expired
		delete(m.data, key)
	}
	m.mu.Unlock()
	observability.RecordCacheMiss()
	return nil, false
}

// Put stores a panel. Concurrent puts for the same key overwrite with the
// same deterministic content, so last-writer-wins is harmless.
func (m *Memory) Put(key Key, panel *domain.FactorPanel) {
	if panel == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if m.ttl > 0 {
		expires = m.now().Add(m.ttl)
	}
	m.data[key] = entry{panel: panel, expiresAt: expires}

	if m.maxEntries > 0 && len(m.data) > m.maxEntries {
		m.evictLocked()
	}
}

// Stats returns hit and miss counters.
func (m *Memory) Stats() (hits, misses uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits, m.misses
}

// evictLocked removes entries until the cache fits maxEntries, earliest
// expiry first, breaking ties by key order.
func (m *Memory) evictLocked() {
	type victim struct {
		key Key
		exp time.Time
	}
	victims := make([]victim, 0, len(m.data))
	for k, e := range m.data {
		victims = append(victims, victim{key: k, exp: e.expiresAt})
	}
	sort.Slice(victims, func(i, j int) bool {
		if !victims[i].exp.Equal(victims[j].exp) {
			return victims[i].exp.Before(victims[j].exp)
		}
		return lessKey(victims[i].key, victims[j].key)
	})
	for _, v := range victims {
		if len(m.data) <= m.maxEntries {
			break
		}
		delete(m.data, v.key)
		observability.RecordCacheEviction()
	}
}

func lessKey(a, b Key) bool {
	if a.Day != b.Day {
		return a.Day < b.Day
	}
	if a.Filters != b.Filters {
		return a.Filters < b.Filters
	}
	return a.Factors < b.Factors
}

var _ Cache = (*Memory)(nil)
