// Package adapter binds concrete concurrent map implementations to the
// collection contract.
//
// Families covered:
//
//   - global lock around a sequential map (Go map, swiss table, B-tree)
//   - sharded locking (shardmap, concurrent-map)
//   - bucket locks with lock-free reads (xsync MapOf)
//   - lock-free hashing (sync.Map, haxmap)
//   - copy-on-write dual map with explicit refresh (leftright)
//   - ordered lock-free skiplist (skipmap)
//
// Adapters whose lock-free structures churn heap nodes declare Quiesce so the
// orchestrator forces garbage collection between their runs.
package adapter

import (
	"errors"
	"fmt"

	"github.com/weiihann/cmapbench/collection"
	"github.com/weiihann/cmapbench/hasher"
)

// Module paths of the third-party maps, used for version lookup.
const (
	ModuleXSync         = "github.com/puzpuzpuz/xsync/v3"
	ModuleHaxMap        = "github.com/alphadose/haxmap"
	ModuleSwiss         = "github.com/cockroachdb/swiss"
	ModuleBTree         = "github.com/google/btree"
	ModuleConcurrentMap = "github.com/orcaman/concurrent-map/v2"
	ModuleSkipMap       = "github.com/zhangyunhao116/skipmap"
)

// MaxCapacity is the largest capacity any adapter accepts.
const MaxCapacity int64 = 1 << 40

var (
	// ErrCapacity is returned for a capacity outside [0, MaxCapacity].
	ErrCapacity = errors.New("invalid capacity")
	// ErrHasher is returned when a hashing adapter gets an unusable hasher.
	ErrHasher = errors.New("invalid hasher")
)

// All returns every adapter in run order. versions supplies the
// dependency versions embedded in display names, usually a
// *version.Registry.
func All[K collection.Key](versions labeler) []collection.Adapter[K] {
	return []collection.Adapter[K]{
		StdRWMutex[K](),
		StdMutex[K](),
		SyncMap[K](),
		ShardMap[K](),
		ConcurrentMap[K](versions),
		XSync[K](versions),
		HaxMap[K](versions),
		Swiss[K](versions),
		BTree[K](versions),
		SkipMap[K](versions),
		LeftRight[K](),
	}
}

func checkCapacity(capacity int) error {
	if capacity < 0 || int64(capacity) > MaxCapacity {
		return fmt.Errorf("%w %d, must be within [0, %d]",
			ErrCapacity, capacity, MaxCapacity)
	}

	return nil
}

func checkHashed(capacity int, h hasher.Hasher) error {
	if err := checkCapacity(capacity); err != nil {
		return err
	}

	if !h.Valid() {
		return fmt.Errorf("%w: hasher not configured", ErrHasher)
	}

	return nil
}

// labeler builds display names; *version.Registry implements it.
type labeler interface {
	Label(module, variant string) string
}

// valuer exposes the stored counter of a key. Every adapter implements it
// on its collection so tests can observe increments.
type valuer[K collection.Key] interface {
	value(key K) (collection.Value, bool)
}
