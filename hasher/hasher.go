// Package hasher selects the hash function used by the hashing adapters.
package hasher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/maphash"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Kind names a hash strategy.
type Kind string

const (
	// Std is the runtime's seeded map hash.
	Std Kind = "std"
	// AHash is the fast non-cryptographic strategy, backed by xxhash.
	AHash Kind = "ahash"
	// Murmur3 is the 64-bit murmur3 hash.
	Murmur3 Kind = "murmur3"
)

// ErrUnknown is returned for a hasher name outside Kinds.
var ErrUnknown = errors.New("unknown hasher")

// Kinds returns the supported hasher names.
func Kinds() []Kind {
	return []Kind{Std, AHash, Murmur3}
}

// ParseKind parses a hasher name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Std, AHash, Murmur3:
		return k, nil
	default:
		return "", fmt.Errorf("%w %q, must be one of %v", ErrUnknown, s, Kinds())
	}
}

// Hasher hashes uint64 keys with one strategy and a fixed seed. The zero
// value is not usable; see Valid.
type Hasher struct {
	kind Kind
	seed uint64
	ms   maphash.Seed
}

// New returns a Hasher for kind. Seed zero is allowed and is still
// deterministic for AHash and Murmur3; Std always draws a random seed.
func New(kind Kind, seed uint64) (Hasher, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Hasher{}, err
	}

	return Hasher{kind: kind, seed: seed, ms: maphash.MakeSeed()}, nil
}

// Kind returns the strategy name.
func (h Hasher) Kind() Kind {
	return h.kind
}

// Valid reports whether h was built by New.
func (h Hasher) Valid() bool {
	return h.kind != ""
}

// Sum64 hashes x.
func (h Hasher) Sum64(x uint64) uint64 {
	switch h.kind {
	case AHash:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], x^h.seed)

		return xxhash.Sum64(buf[:])
	case Murmur3:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], x)

		return murmur3.Sum64WithSeed(buf[:], uint32(h.seed))
	default:
		return maphash.Comparable(h.ms, x)
	}
}
