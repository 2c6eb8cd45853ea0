// Package shardmap provides a concurrent map split into independently
// locked shards.
//
// A key's shard is chosen from its hash, so writers on different shards
// never contend. Reads take the shard's read lock, writes its write lock.
package shardmap

import (
	"runtime"
	"sync"
)

// DefaultShardCount returns four shards per CPU, rounded up to a power of two.
func DefaultShardCount() int {
	return ceilPow2(4 * runtime.GOMAXPROCS(0))
}

// Map is a concurrent-safe sharded map.
type Map[K comparable, V any] struct {
	shards    []shard[K, V]
	shardMask uint64
	hash      func(K) uint64
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	// pad to one 64-byte cache line
	_ [32]byte
}

// New creates a map with DefaultShardCount shards, presized for capacity
// entries in total.
func New[K comparable, V any](capacity int, hash func(K) uint64) *Map[K, V] {
	return NewWithShards[K, V](DefaultShardCount(), capacity, hash)
}

// NewWithShards creates a map with shardCount shards. shardCount is rounded
// up to a power of two.
func NewWithShards[K comparable, V any](
	shardCount, capacity int,
	hash func(K) uint64,
) *Map[K, V] {
	shardCount = ceilPow2(max(shardCount, 1))
	perShard := max(capacity, 0) / shardCount

	m := &Map[K, V]{
		shards:    make([]shard[K, V], shardCount),
		shardMask: uint64(shardCount - 1),
		hash:      hash,
	}

	for i := range m.shards {
		m.shards[i].items = make(map[K]V, perShard)
	}

	return m
}

// Shards returns the number of shards.
func (m *Map[K, V]) Shards() int {
	return len(m.shards)
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	// Fold the high half in; the low bits alone are often weak.
	h := m.hash(key)

	return &m.shards[(h>>32^h)&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()

	return v, ok
}

// Insert stores value under key unless key is already present.
// It reports whether the value was stored.
func (m *Map[K, V]) Insert(key K, value V) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = value

	return true
}

// Remove deletes key and reports whether it was present.
func (m *Map[K, V]) Remove(key K) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)

	return true
}

// Update replaces the value of a present key with fn(old) while holding the
// shard lock. It reports whether key was present.
func (m *Map[K, V]) Update(key K, fn func(V) V) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[key]
	if !ok {
		return false
	}
	s.items[key] = fn(v)

	return true
}

// Len returns the total number of items.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}

	return n
}

func ceilPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
