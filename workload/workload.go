// Package workload describes benchmark workloads (operation mix, initial
// capacity, prefill) and drives the prefill and measured phases against a
// collection.
package workload

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind names a workload preset.
type Kind string

const (
	ReadHeavy Kind = "read_heavy"
	RapidGrow Kind = "rapid_grow"
	Exchange  Kind = "exchange"
)

// ErrUnknownKind is returned for a workload name outside Kinds.
var ErrUnknownKind = errors.New("unknown workload")

// Kinds returns the preset names.
func Kinds() []Kind {
	return []Kind{ReadHeavy, RapidGrow, Exchange}
}

// ParseKind parses a workload name. Case and the underscore are optional,
// so "ReadHeavy" and "read_heavy" are the same workload.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read_heavy", "readheavy":
		return ReadHeavy, nil
	case "rapid_grow", "rapidgrow":
		return RapidGrow, nil
	case "exchange":
		return Exchange, nil
	default:
		return "", fmt.Errorf("%w %q, must be one of %v", ErrUnknownKind, s, Kinds())
	}
}

// Mix holds relative operation weights. They need not sum to any total.
type Mix struct {
	Read   uint32 `json:"read"`
	Insert uint32 `json:"insert"`
	Remove uint32 `json:"remove"`
	Update uint32 `json:"update"`
	Upsert uint32 `json:"upsert"`
}

// Total returns the sum of all weights.
func (m Mix) Total() uint64 {
	return uint64(m.Read) + uint64(m.Insert) + uint64(m.Remove) +
		uint64(m.Update) + uint64(m.Upsert)
}

// Workload is one fully parameterized run.
type Workload struct {
	// Threads is the number of worker goroutines.
	Threads int
	Mix     Mix
	// CapacityLog2 sets the initial capacity to 2^CapacityLog2 entries.
	CapacityLog2 uint8
	// PrefillFraction of the initial capacity is inserted before timing.
	PrefillFraction float64
	// Operations scales the measured operation count as a multiple of the
	// initial capacity.
	Operations float64
	// Seed makes key and operation choice reproducible.
	Seed uint64
}

// Preset returns the workload for kind with one thread and an operations
// multiplier of 1.
func Preset(kind Kind) (Workload, error) {
	w := Workload{
		Threads:      1,
		CapacityLog2: 25,
		Operations:   1,
	}

	switch kind {
	case ReadHeavy:
		w.Mix = Mix{Read: 98, Insert: 1, Remove: 1}
		w.PrefillFraction = 0.75
	case RapidGrow:
		w.Mix = Mix{Read: 5, Insert: 80, Remove: 5, Update: 10}
		w.PrefillFraction = 0
	case Exchange:
		w.Mix = Mix{Read: 10, Insert: 40, Remove: 40, Update: 10}
		w.PrefillFraction = 0.75
	default:
		return Workload{}, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}

	return w, nil
}

// MaxCapacityLog2 bounds CapacityLog2.
const MaxCapacityLog2 = 40

// Validate checks the parameters before anything is allocated.
func (w Workload) Validate() error {
	switch {
	case w.Threads < 1:
		return fmt.Errorf("threads must be at least 1, got %d", w.Threads)
	case w.Mix.Total() == 0:
		return errors.New("operation mix has no weight")
	case w.CapacityLog2 > MaxCapacityLog2:
		return fmt.Errorf("capacity log2 must be at most %d, got %d",
			MaxCapacityLog2, w.CapacityLog2)
	case math.IsNaN(w.PrefillFraction) ||
		w.PrefillFraction < 0 || w.PrefillFraction > 1:
		return fmt.Errorf("prefill fraction must be within [0, 1], got %v",
			w.PrefillFraction)
	case math.IsNaN(w.Operations) || math.IsInf(w.Operations, 0) ||
		w.Operations < 0:
		return fmt.Errorf("operations must be a finite value >= 0, got %v",
			w.Operations)
	}

	return nil
}

// InitialCapacity returns 2^CapacityLog2.
func (w Workload) InitialCapacity() uint64 {
	return 1 << w.CapacityLog2
}

// PrefillCount returns floor(PrefillFraction * InitialCapacity).
func (w Workload) PrefillCount() uint64 {
	return uint64(math.Floor(w.PrefillFraction * float64(w.InitialCapacity())))
}

// TotalOps returns the measured operation budget,
// floor(Operations * InitialCapacity).
func (w Workload) TotalOps() uint64 {
	return uint64(math.Floor(w.Operations * float64(w.InitialCapacity())))
}

// share returns worker t's part of the budget. The remainder goes to the
// lowest-numbered workers so the shares add up to TotalOps exactly.
func (w Workload) share(t int) uint64 {
	total := w.TotalOps()
	n := uint64(w.Threads)

	ops := total / n
	if uint64(t) < total%n {
		ops++
	}

	return ops
}
