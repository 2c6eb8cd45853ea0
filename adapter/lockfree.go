package adapter

import (
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/atomic"

	"github.com/weiihann/cmapbench/collection"
	"github.com/weiihann/cmapbench/hasher"
)

// Maps without an atomic compute primitive store a pointer to an atomic
// counter. An Update racing a Remove may increment a cell that was just
// unlinked; it is ordered before the Remove.
type cell = atomic.Uint64

func newCell() *cell { return atomic.NewUint64(0) }

type syncMapTable[K collection.Key] struct {
	m sync.Map
}

func (t *syncMapTable[K]) Pin() collection.Handle[K] { return t }

func (t *syncMapTable[K]) Get(key K) bool {
	_, ok := t.m.Load(key)

	return ok
}

func (t *syncMapTable[K]) Insert(key K) bool {
	_, loaded := t.m.LoadOrStore(key, newCell())

	return !loaded
}

func (t *syncMapTable[K]) Remove(key K) bool {
	_, loaded := t.m.LoadAndDelete(key)

	return loaded
}

func (t *syncMapTable[K]) Update(key K) bool {
	c, ok := t.m.Load(key)
	if !ok {
		return false
	}
	c.(*cell).Inc()

	return true
}

func (t *syncMapTable[K]) value(key K) (collection.Value, bool) {
	c, ok := t.m.Load(key)
	if !ok {
		return 0, false
	}

	return c.(*cell).Load(), true
}

// SyncMap is the standard library's sync.Map, a lock-free hash trie.
// It ignores capacity and hasher.
func SyncMap[K collection.Key]() collection.Adapter[K] {
	return collection.Adapter[K]{
		Name:    "std(sync.Map)",
		Quiesce: true,
		New: func(capacity int, _ hasher.Hasher) (collection.Collection[K], error) {
			if err := checkCapacity(capacity); err != nil {
				return nil, err
			}

			return &syncMapTable[K]{}, nil
		},
	}
}

type xsyncTable[K collection.Key] struct {
	m *xsync.MapOf[K, collection.Value]
}

func (t *xsyncTable[K]) Pin() collection.Handle[K] { return t }

func (t *xsyncTable[K]) Get(key K) bool {
	_, ok := t.m.Load(key)

	return ok
}

func (t *xsyncTable[K]) Insert(key K) bool {
	_, loaded := t.m.LoadOrStore(key, 0)

	return !loaded
}

func (t *xsyncTable[K]) Remove(key K) bool {
	_, loaded := t.m.LoadAndDelete(key)

	return loaded
}

func (t *xsyncTable[K]) Update(key K) bool {
	var present bool

	t.m.Compute(key, func(old collection.Value, loaded bool) (collection.Value, bool) {
		present = loaded
		if !loaded {
			// Deleting an absent key leaves it absent.
			return 0, true
		}

		return old + 1, false
	})

	return present
}

func (t *xsyncTable[K]) value(key K) (collection.Value, bool) {
	return t.m.Load(key)
}

// XSync is xsync's MapOf: lock-free reads, writes under a bucket lock.
func XSync[K collection.Key](versions labeler) collection.Adapter[K] {
	return collection.Adapter[K]{
		Name:    versions.Label(ModuleXSync, "MapOf"),
		Quiesce: true,
		New: func(capacity int, h hasher.Hasher) (collection.Collection[K], error) {
			if err := checkHashed(capacity, h); err != nil {
				return nil, err
			}

			m := xsync.NewMapOfWithHasher[K, collection.Value](
				func(key K, seed uint64) uint64 {
					return h.Sum64(uint64(key) ^ seed)
				},
				xsync.WithPresize(capacity),
			)

			return &xsyncTable[K]{m: m}, nil
		},
	}
}

type haxTable[K collection.Key] struct {
	m *haxmap.Map[K, *cell]
}

func (t *haxTable[K]) Pin() collection.Handle[K] { return t }

func (t *haxTable[K]) Get(key K) bool {
	_, ok := t.m.Get(key)

	return ok
}

func (t *haxTable[K]) Insert(key K) bool {
	_, loaded := t.m.GetOrSet(key, newCell())

	return !loaded
}

func (t *haxTable[K]) Remove(key K) bool {
	_, ok := t.m.GetAndDel(key)

	return ok
}

func (t *haxTable[K]) Update(key K) bool {
	c, ok := t.m.Get(key)
	if !ok {
		return false
	}
	c.Inc()

	return true
}

func (t *haxTable[K]) value(key K) (collection.Value, bool) {
	c, ok := t.m.Get(key)
	if !ok {
		return 0, false
	}

	return c.Load(), true
}

// HaxMap is haxmap's lock-free sorted-list hash map.
func HaxMap[K collection.Key](versions labeler) collection.Adapter[K] {
	return collection.Adapter[K]{
		Name:    versions.Label(ModuleHaxMap, ""),
		Quiesce: true,
		New: func(capacity int, h hasher.Hasher) (collection.Collection[K], error) {
			if err := checkHashed(capacity, h); err != nil {
				return nil, err
			}

			var m *haxmap.Map[K, *cell]
			if capacity > 0 {
				m = haxmap.New[K, *cell](uintptr(capacity))
			} else {
				m = haxmap.New[K, *cell]()
			}

			m.SetHasher(func(key K) uintptr {
				return uintptr(h.Sum64(uint64(key)))
			})

			return &haxTable[K]{m: m}, nil
		},
	}
}

type skipTable[K collection.Key] struct {
	m *skipmap.OrderedMap[K, *cell]
}

func (t *skipTable[K]) Pin() collection.Handle[K] { return t }

func (t *skipTable[K]) Get(key K) bool {
	_, ok := t.m.Load(key)

	return ok
}

func (t *skipTable[K]) Insert(key K) bool {
	_, loaded := t.m.LoadOrStore(key, newCell())

	return !loaded
}

func (t *skipTable[K]) Remove(key K) bool {
	_, loaded := t.m.LoadAndDelete(key)

	return loaded
}

func (t *skipTable[K]) Update(key K) bool {
	c, ok := t.m.Load(key)
	if !ok {
		return false
	}
	c.Inc()

	return true
}

func (t *skipTable[K]) value(key K) (collection.Value, bool) {
	c, ok := t.m.Load(key)
	if !ok {
		return 0, false
	}

	return c.Load(), true
}

// SkipMap is an ordered skiplist with lock-free reads. It ignores capacity
// and hasher.
func SkipMap[K collection.Key](versions labeler) collection.Adapter[K] {
	return collection.Adapter[K]{
		Name:    versions.Label(ModuleSkipMap, ""),
		Quiesce: true,
		New: func(capacity int, _ hasher.Hasher) (collection.Collection[K], error) {
			if err := checkCapacity(capacity); err != nil {
				return nil, err
			}

			return &skipTable[K]{m: skipmap.New[K, *cell]()}, nil
		},
	}
}
