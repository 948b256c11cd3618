// SPDX-License-Identifier: MIT

// Package cache holds short-lived results of slow vendor lookups so a
// busy shop does not pay the same VIN decode or canned-job labor query
// twice in one shift. Values are stored as encoded bytes; the typed
// wrappers in lookup.go own the encoding and the cache keys.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the byte-level contract shared by the in-memory and Redis
// backends. Implementations are safe for concurrent use and never return
// an expired entry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Stats() Stats
	Close() error
}

// Stats counts cache traffic since the store was created.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Swept   int64 // expired entries removed by the sweeper
	Entries int
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is the in-process Store. A background sweeper reclaims expired
// entries; lookups also treat expiry as authoritative, so a stale entry is
// never served even between sweeps.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	hits    int64
	misses  int64
	sets    int64
	swept   int64

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// NewMemory creates a Memory store. sweepInterval <= 0 disables the
// background sweeper.
func NewMemory(sweepInterval time.Duration) *Memory {
	m := &Memory{
		entries:   make(map[string]memoryEntry),
		stopSweep: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go m.sweepLoop(sweepInterval)
	}
	return m
}

// Get returns the unexpired value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		m.misses++
		return nil, false
	}
	m.hits++
	return e.value, true
}

// Set stores value under key for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	m.sets++
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Stats returns a snapshot of traffic counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Hits:    m.hits,
		Misses:  m.misses,
		Sets:    m.sets,
		Swept:   m.swept,
		Entries: len(m.entries),
	}
}

// Close stops the sweeper. The store remains usable afterwards.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stopSweep) })
	return nil
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep removes expired entries and returns how many were dropped.
func (m *Memory) sweep() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			dropped++
		}
	}
	m.swept += int64(dropped)
	return dropped
}

var _ Store = (*Memory)(nil)
