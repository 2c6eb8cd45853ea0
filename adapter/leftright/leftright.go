// Package leftright implements a dual-copy map in the left-right style.
//
// Two copies of the map exist. Readers use the published copy and never
// block on writers. Writers serialize on a mutex and modify the standby
// copy, recording each change in an operation log. Refresh publishes the
// standby copy, waits for readers to leave the old one, and replays the log
// onto it so both copies converge again. Until Refresh is called, readers
// observe the previous snapshot.
package leftright

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type opKind uint8

const (
	opSet opKind = iota
	opDelete
)

type op[K comparable, V any] struct {
	kind  opKind
	key   K
	value V
}

type readers struct {
	n atomic.Int64
	_ [56]byte
}

// Map is a left-right map. The zero value is not usable; use New.
type Map[K comparable, V any] struct {
	maps    [2]map[K]V
	active  atomic.Uint32
	readers [2]readers

	mu    sync.Mutex
	oplog []op[K, V]
}

// New returns an empty Map with both copies sized for capacity entries.
func New[K comparable, V any](capacity int) *Map[K, V] {
	capacity = max(capacity, 0)

	return &Map[K, V]{
		maps: [2]map[K]V{
			make(map[K]V, capacity),
			make(map[K]V, capacity),
		},
	}
}

// enter registers a reader on the published side and returns it.
func (m *Map[K, V]) enter() uint32 {
	for {
		side := m.active.Load()
		m.readers[side].n.Add(1)

		if m.active.Load() == side {
			return side
		}

		// A refresh swapped sides between the load and the registration.
		m.readers[side].n.Add(-1)
	}
}

// Get reads key from the published snapshot.
func (m *Map[K, V]) Get(key K) (V, bool) {
	side := m.enter()
	v, ok := m.maps[side][key]
	m.readers[side].n.Add(-1)

	return v, ok
}

// Len returns the number of entries in the published snapshot.
func (m *Map[K, V]) Len() int {
	side := m.enter()
	n := len(m.maps[side])
	m.readers[side].n.Add(-1)

	return n
}

func (m *Map[K, V]) standby() map[K]V {
	return m.maps[1-m.active.Load()]
}

// Insert stores value under key in the standby copy unless key is already
// present there. It reports whether the value was stored.
func (m *Map[K, V]) Insert(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.standby()
	if _, ok := w[key]; ok {
		return false
	}

	w[key] = value
	m.oplog = append(m.oplog, op[K, V]{kind: opSet, key: key, value: value})

	return true
}

// Remove deletes key from the standby copy and reports whether it was
// present there.
func (m *Map[K, V]) Remove(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.standby()
	if _, ok := w[key]; !ok {
		return false
	}

	delete(w, key)
	m.oplog = append(m.oplog, op[K, V]{kind: opDelete, key: key})

	return true
}

// Update replaces a present key's value in the standby copy with fn(old).
// It reports whether key was present.
func (m *Map[K, V]) Update(key K, fn func(V) V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.standby()

	v, ok := w[key]
	if !ok {
		return false
	}

	v = fn(v)
	w[key] = v
	m.oplog = append(m.oplog, op[K, V]{kind: opSet, key: key, value: v})

	return true
}

// Pending returns the number of writes not yet published.
func (m *Map[K, V]) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.oplog)
}

// Refresh publishes all pending writes. It blocks until every reader of
// the previous snapshot has finished.
func (m *Map[K, V]) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.oplog) == 0 {
		return
	}

	old := m.active.Load()
	m.active.Store(1 - old)

	for m.readers[old].n.Load() != 0 {
		runtime.Gosched()
	}

	w := m.maps[old]
	for _, o := range m.oplog {
		switch o.kind {
		case opSet:
			w[o.key] = o.value
		case opDelete:
			delete(w, o.key)
		}
	}

	clear(m.oplog)
	m.oplog = m.oplog[:0]
}
