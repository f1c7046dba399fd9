// Package cache provides the spreadsheet snapshot caches behind core.SyncCache.
//
// Memory keeps snapshots in a bounded in-process LRU and is the default.
// Redis shares snapshots between replicas. Both treat entries older than the
// configured TTL as absent.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// DefaultMaxEntries bounds the memory cache when no size is configured.
const DefaultMaxEntries = 256

const keySep = "\x00"

type entry struct {
	data     core.SheetData
	storedAt time.Time
}

// Memory is an in-process LRU cache of spreadsheet snapshots.
type Memory struct {
	mu    sync.Mutex // serializes Invalidate's key scan against Put
	items *lru.Cache[string, entry]
	ttl   time.Duration
	now   func() time.Time
}

// NewMemory creates a memory cache holding at most maxEntries sections.
func NewMemory(maxEntries int, ttl time.Duration) (*Memory, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	items, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Memory{items: items, ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func memoryKey(docID, section string) string {
	return docID + keySep + section
}

// Get returns a fresh snapshot. Stale entries are evicted on read.
func (m *Memory) Get(_ context.Context, docID, section string) (core.SheetData, bool) {
	key := memoryKey(docID, section)
	e, ok := m.items.Get(key)
	if !ok {
		return core.SheetData{}, false
	}
	if m.ttl > 0 && m.now().Sub(e.storedAt) >= m.ttl {
		m.items.Remove(key)
		return core.SheetData{}, false
	}
	return e.data, true
}

// Put stores a snapshot, replacing any previous one for the section.
func (m *Memory) Put(_ context.Context, docID, section string, data core.SheetData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Add(memoryKey(docID, section), entry{data: data, storedAt: m.now()})
}

// Invalidate drops every section cached for docID.
func (m *Memory) Invalidate(_ context.Context, docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := docID + keySep
	for _, key := range m.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.items.Remove(key)
		}
	}
}

// Len returns the number of cached sections, stale ones included.
func (m *Memory) Len() int {
	return m.items.Len()
}

var _ core.SyncCache = (*Memory)(nil)
