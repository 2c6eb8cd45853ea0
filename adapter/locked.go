package adapter

import (
	"sync"

	"github.com/cockroachdb/swiss"
	"github.com/google/btree"

	"github.com/weiihann/cmapbench/collection"
	"github.com/weiihann/cmapbench/hasher"
)

// seqMap is a sequential map that the global-lock template serializes.
type seqMap[K collection.Key] interface {
	get(key K) (collection.Value, bool)
	insert(key K) bool
	remove(key K) bool
	incr(key K) bool
}

type rwLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// exclusive is a mutex whose read lock is the write lock.
type exclusive struct {
	sync.Mutex
}

func (e *exclusive) RLock()   { e.Lock() }
func (e *exclusive) RUnlock() { e.Unlock() }

// locked wraps any seqMap in one lock. The table itself is the handle:
// pinning copies a pointer.
type locked[K collection.Key, M seqMap[K]] struct {
	mu rwLocker
	m  M
}

func newLocked[K collection.Key, M seqMap[K]](mu rwLocker, m M) *locked[K, M] {
	return &locked[K, M]{mu: mu, m: m}
}

func (t *locked[K, M]) Pin() collection.Handle[K] { return t }

func (t *locked[K, M]) Get(key K) bool {
	t.mu.RLock()
	_, ok := t.m.get(key)
	t.mu.RUnlock()

	return ok
}

func (t *locked[K, M]) Insert(key K) bool {
	t.mu.Lock()
	ok := t.m.insert(key)
	t.mu.Unlock()

	return ok
}

func (t *locked[K, M]) Remove(key K) bool {
	t.mu.Lock()
	ok := t.m.remove(key)
	t.mu.Unlock()

	return ok
}

func (t *locked[K, M]) Update(key K) bool {
	t.mu.Lock()
	ok := t.m.incr(key)
	t.mu.Unlock()

	return ok
}

func (t *locked[K, M]) value(key K) (collection.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.m.get(key)
}

// goMap is the builtin map.
type goMap[K collection.Key] map[K]collection.Value

func (m goMap[K]) get(key K) (collection.Value, bool) {
	v, ok := m[key]

	return v, ok
}

func (m goMap[K]) insert(key K) bool {
	if _, ok := m[key]; ok {
		return false
	}
	m[key] = 0

	return true
}

func (m goMap[K]) remove(key K) bool {
	if _, ok := m[key]; !ok {
		return false
	}
	delete(m, key)

	return true
}

func (m goMap[K]) incr(key K) bool {
	if _, ok := m[key]; !ok {
		return false
	}
	m[key]++

	return true
}

// StdRWMutex is the builtin map behind a sync.RWMutex; reads share the lock.
func StdRWMutex[K collection.Key]() collection.Adapter[K] {
	return collection.Adapter[K]{
		Name: "std(map, RWMutex)",
		New: func(capacity int, _ hasher.Hasher) (collection.Collection[K], error) {
			if err := checkCapacity(capacity); err != nil {
				return nil, err
			}

			return newLocked[K](&sync.RWMutex{}, make(goMap[K], capacity)), nil
		},
	}
}

// StdMutex is the builtin map behind a sync.Mutex; every access is exclusive.
func StdMutex[K collection.Key]() collection.Adapter[K] {
	return collection.Adapter[K]{
		Name: "std(map, Mutex)",
		New: func(capacity int, _ hasher.Hasher) (collection.Collection[K], error) {
			if err := checkCapacity(capacity); err != nil {
				return nil, err
			}

			return newLocked[K](&exclusive{}, make(goMap[K], capacity)), nil
		},
	}
}

type swissMap[K collection.Key] struct {
	m *swiss.Map[K, collection.Value]
}

func (s swissMap[K]) get(key K) (collection.Value, bool) {
	return s.m.Get(key)
}

func (s swissMap[K]) insert(key K) bool {
	if _, ok := s.m.Get(key); ok {
		return false
	}
	s.m.Put(key, 0)

	return true
}

func (s swissMap[K]) remove(key K) bool {
	if _, ok := s.m.Get(key); !ok {
		return false
	}
	s.m.Delete(key)

	return true
}

func (s swissMap[K]) incr(key K) bool {
	v, ok := s.m.Get(key)
	if !ok {
		return false
	}
	s.m.Put(key, v+1)

	return true
}

// Swiss is a swiss table behind a sync.RWMutex, hashed with the configured
// hasher.
func Swiss[K collection.Key](versions labeler) collection.Adapter[K] {
	return collection.Adapter[K]{
		Name: versions.Label(ModuleSwiss, "RWMutex"),
		New: func(capacity int, h hasher.Hasher) (collection.Collection[K], error) {
			if err := checkHashed(capacity, h); err != nil {
				return nil, err
			}

			m := swiss.New[K, collection.Value](capacity,
				swiss.WithHash[K, collection.Value](func(key *K, seed uintptr) uintptr {
					return uintptr(h.Sum64(uint64(*key) ^ uint64(seed)))
				}),
			)

			return newLocked[K](&sync.RWMutex{}, swissMap[K]{m: m}), nil
		},
	}
}

type btreeItem[K collection.Key] struct {
	key K
	val collection.Value
}

func lessItem[K collection.Key](a, b btreeItem[K]) bool {
	return a.key < b.key
}

type btreeMap[K collection.Key] struct {
	t *btree.BTreeG[btreeItem[K]]
}

func (b btreeMap[K]) get(key K) (collection.Value, bool) {
	it, ok := b.t.Get(btreeItem[K]{key: key})

	return it.val, ok
}

func (b btreeMap[K]) insert(key K) bool {
	if b.t.Has(btreeItem[K]{key: key}) {
		return false
	}
	b.t.ReplaceOrInsert(btreeItem[K]{key: key})

	return true
}

func (b btreeMap[K]) remove(key K) bool {
	_, ok := b.t.Delete(btreeItem[K]{key: key})

	return ok
}

func (b btreeMap[K]) incr(key K) bool {
	it, ok := b.t.Get(btreeItem[K]{key: key})
	if !ok {
		return false
	}
	it.val++
	b.t.ReplaceOrInsert(it)

	return true
}

const btreeDegree = 32

// BTree is an ordered B-tree behind a sync.RWMutex. Capacity and hasher do
// not apply.
func BTree[K collection.Key](versions labeler) collection.Adapter[K] {
	return collection.Adapter[K]{
		Name: versions.Label(ModuleBTree, "RWMutex"),
		New: func(capacity int, _ hasher.Hasher) (collection.Collection[K], error) {
			if err := checkCapacity(capacity); err != nil {
				return nil, err
			}

			t := btree.NewG[btreeItem[K]](btreeDegree, lessItem[K])

			return newLocked[K](&sync.RWMutex{}, btreeMap[K]{t: t}), nil
		},
	}
}
