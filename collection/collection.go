// Package collection defines the operation contract every concurrent map
// adapter implements so the benchmark loop can drive them identically.
package collection

import (
	"github.com/weiihann/cmapbench/hasher"
)

// Key is the constraint on benchmark keys. Every member is ordered,
// comparable and hashable, and converts losslessly from a uint64 index on
// 64-bit platforms.
type Key interface {
	~uint64 | ~int64 | ~uint | ~int
}

// Value is the counter stored against every key. Only Update changes it.
type Value = uint64

// Handle is a per-goroutine access point into a Collection. A Handle must
// not be shared between goroutines.
//
// Every method reports the logical outcome at the instant of the call.
// None of them can fail.
type Handle[K Key] interface {
	// Get reports whether key is present.
	Get(key K) bool
	// Insert adds key with a zero Value and reports whether it was absent.
	Insert(key K) bool
	// Remove deletes key and reports whether it was present.
	Remove(key K) bool
	// Update increments the Value of key by one and reports whether key
	// was present. Absent keys are left absent.
	Update(key K) bool
}

// Collection is one container instance under test.
type Collection[K Key] interface {
	// Pin returns a Handle for the calling goroutine. It is called once per
	// worker per run and must be cheap.
	Pin() Handle[K]
}

// Adapter binds one concurrency strategy to the contract.
type Adapter[K Key] struct {
	// Name is the display name used for reporting and skip filtering.
	Name string
	// Quiesce is set by adapters whose garbage from node churn must be
	// reclaimed before the next run is timed.
	Quiesce bool
	// New builds a collection sized for at least capacity entries. An error
	// is a configuration error and aborts the benchmark pass.
	New func(capacity int, h hasher.Hasher) (Collection[K], error)
}

// KeyOf converts a workload index into a key. The mapping is a bijection on
// uint64, so distinct indices always give distinct keys, while consecutive
// indices are spread across the key space.
func KeyOf[K Key](index uint64) K {
	return K(Scramble(index))
}

// Scramble is the splitmix64 finalizer. Each step is invertible.
func Scramble(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31

	return x
}
