package adapter

import (
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/weiihann/cmapbench/adapter/shardmap"
	"github.com/weiihann/cmapbench/collection"
	"github.com/weiihann/cmapbench/hasher"
)

type shardTable[K collection.Key] struct {
	m *shardmap.Map[K, collection.Value]
}

func (t *shardTable[K]) Pin() collection.Handle[K] { return t }

func (t *shardTable[K]) Get(key K) bool {
	_, ok := t.m.Get(key)

	return ok
}

func (t *shardTable[K]) Insert(key K) bool {
	return t.m.Insert(key, 0)
}

func (t *shardTable[K]) Remove(key K) bool {
	return t.m.Remove(key)
}

func (t *shardTable[K]) Update(key K) bool {
	return t.m.Update(key, increment)
}

func (t *shardTable[K]) value(key K) (collection.Value, bool) {
	return t.m.Get(key)
}

func increment(v collection.Value) collection.Value { return v + 1 }

// ShardMap splits the key space over RWMutex-guarded shards chosen by the
// configured hasher.
func ShardMap[K collection.Key]() collection.Adapter[K] {
	return collection.Adapter[K]{
		Name: "shardmap",
		New: func(capacity int, h hasher.Hasher) (collection.Collection[K], error) {
			if err := checkHashed(capacity, h); err != nil {
				return nil, err
			}

			m := shardmap.New[K, collection.Value](capacity, func(key K) uint64 {
				return h.Sum64(uint64(key))
			})

			return &shardTable[K]{m: m}, nil
		},
	}
}

type cmapTable[K collection.Key] struct {
	m cmap.ConcurrentMap[K, *cell]
}

func (t *cmapTable[K]) Pin() collection.Handle[K] { return t }

func (t *cmapTable[K]) Get(key K) bool {
	_, ok := t.m.Get(key)

	return ok
}

func (t *cmapTable[K]) Insert(key K) bool {
	return t.m.SetIfAbsent(key, newCell())
}

func (t *cmapTable[K]) Remove(key K) bool {
	_, ok := t.m.Pop(key)

	return ok
}

func (t *cmapTable[K]) Update(key K) bool {
	c, ok := t.m.Get(key)
	if !ok {
		return false
	}
	c.Inc()

	return true
}

func (t *cmapTable[K]) value(key K) (collection.Value, bool) {
	c, ok := t.m.Get(key)
	if !ok {
		return 0, false
	}

	return c.Load(), true
}

// ConcurrentMap is orcaman's sharded map. Shards are picked from the upper
// half of the configured hash. It cannot be presized.
func ConcurrentMap[K collection.Key](versions labeler) collection.Adapter[K] {
	return collection.Adapter[K]{
		Name: versions.Label(ModuleConcurrentMap, ""),
		New: func(capacity int, h hasher.Hasher) (collection.Collection[K], error) {
			if err := checkHashed(capacity, h); err != nil {
				return nil, err
			}

			m := cmap.NewWithCustomShardingFunction[K, *cell](func(key K) uint32 {
				return uint32(h.Sum64(uint64(key)) >> 32)
			})

			return &cmapTable[K]{m: m}, nil
		},
	}
}
