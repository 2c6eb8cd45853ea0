// Package config loads and validates cmapbench settings.
//
// Sources are merged with priority Flag > Env > File > Default.
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/weiihann/cmapbench/hasher"
	"github.com/weiihann/cmapbench/workload"
)

var (
	ErrUnknownWorkload = errors.New("unknown workload")
	ErrUnknownHasher   = errors.New("unknown hasher")
	ErrInvalidThreads  = errors.New("invalid thread list")
	ErrInvalidValue    = errors.New("invalid value")
)

// Config is the full benchmark configuration.
type Config struct {
	Workload   string  `koanf:"workload"`
	Operations float64 `koanf:"operations"`
	// Threads overrides the default schedule when non-empty.
	Threads []int  `koanf:"threads"`
	Hasher  string `koanf:"hasher"`
	Seed    uint64 `koanf:"seed"`

	// CapacityLog2 overrides the preset when non-zero.
	CapacityLog2 int `koanf:"capacity_log2"`
	// Prefill overrides the preset when non-negative.
	Prefill float64 `koanf:"prefill"`

	GCSleepMs int      `koanf:"gc_sleep_ms"`
	GCCycles  int      `koanf:"gc_cycles"`
	Skip      []string `koanf:"skip"`

	CSV          bool   `koanf:"csv"`
	CSVNoHeaders bool   `koanf:"csv_no_headers"`
	JSON         bool   `koanf:"json"`
	Markdown     bool   `koanf:"markdown"`
	PromTextfile string `koanf:"prom_textfile"`

	// Versions pins display versions as "module=version" entries.
	Versions []string `koanf:"versions"`

	LogLevel string `koanf:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workload:   string(workload.ReadHeavy),
		Operations: 1,
		Hasher:     string(hasher.Std),
		Seed:       1,
		Prefill:    -1,
		GCSleepMs:  2000,
		GCCycles:   2,
		Skip:       []string{"leftright"},
		LogLevel:   "info",
	}
}

func defaults() map[string]any {
	d := Default()

	return map[string]any{
		"workload":    d.Workload,
		"operations":  d.Operations,
		"hasher":      d.Hasher,
		"seed":        d.Seed,
		"prefill":     d.Prefill,
		"gc_sleep_ms": d.GCSleepMs,
		"gc_cycles":   d.GCCycles,
		"skip":        d.Skip,
		"log_level":   d.LogLevel,
	}
}

// Validate rejects any setting that would fail later, before a benchmark
// starts.
func (c Config) Validate() error {
	if _, err := workload.ParseKind(c.Workload); err != nil {
		return fmt.Errorf("%w %q", ErrUnknownWorkload, c.Workload)
	}

	if _, err := hasher.ParseKind(c.Hasher); err != nil {
		return fmt.Errorf("%w %q, must be one of %v", ErrUnknownHasher, c.Hasher, hasher.Kinds())
	}

	for _, t := range c.Threads {
		if t < 1 {
			return fmt.Errorf("%w: thread count %d must be at least 1", ErrInvalidThreads, t)
		}
	}

	switch {
	case math.IsNaN(c.Operations) || math.IsInf(c.Operations, 0) || c.Operations < 0:
		return fmt.Errorf("%w: operations must be a finite value >= 0, got %v",
			ErrInvalidValue, c.Operations)
	case c.CapacityLog2 != 0 &&
		(c.CapacityLog2 < 1 || c.CapacityLog2 > workload.MaxCapacityLog2):
		return fmt.Errorf("%w: capacity_log2 must be within [1, %d], got %d",
			ErrInvalidValue, workload.MaxCapacityLog2, c.CapacityLog2)
	case math.IsNaN(c.Prefill) || c.Prefill > 1:
		return fmt.Errorf("%w: prefill must be within [0, 1], got %v",
			ErrInvalidValue, c.Prefill)
	case c.GCSleepMs < 0:
		return fmt.Errorf("%w: gc_sleep_ms must be >= 0, got %d", ErrInvalidValue, c.GCSleepMs)
	case c.GCCycles < 0:
		return fmt.Errorf("%w: gc_cycles must be >= 0, got %d", ErrInvalidValue, c.GCCycles)
	}

	if _, err := c.VersionOverrides(); err != nil {
		return err
	}

	return nil
}

// BuildWorkload returns the preset for Workload with the configured
// overrides applied. Threads is left at 1.
func (c Config) BuildWorkload() (workload.Workload, error) {
	kind, err := workload.ParseKind(c.Workload)
	if err != nil {
		return workload.Workload{}, fmt.Errorf("%w %q", ErrUnknownWorkload, c.Workload)
	}

	w, err := workload.Preset(kind)
	if err != nil {
		return workload.Workload{}, err
	}

	w.Operations = c.Operations
	w.Seed = c.Seed
	if c.CapacityLog2 != 0 {
		w.CapacityLog2 = uint8(c.CapacityLog2)
	}
	if c.Prefill >= 0 {
		w.PrefillFraction = c.Prefill
	}

	return w, nil
}

// BuildHasher returns the configured hasher, seeded from Seed.
func (c Config) BuildHasher() (hasher.Hasher, error) {
	kind, err := hasher.ParseKind(c.Hasher)
	if err != nil {
		return hasher.Hasher{}, fmt.Errorf("%w %q", ErrUnknownHasher, c.Hasher)
	}

	return hasher.New(kind, c.Seed)
}

// GCSleep returns the delay before each quiescence cycle.
func (c Config) GCSleep() time.Duration {
	return time.Duration(c.GCSleepMs) * time.Millisecond
}

// VersionOverrides parses Versions into a module -> version map.
func (c Config) VersionOverrides() (map[string]string, error) {
	out := make(map[string]string, len(c.Versions))
	for _, v := range c.Versions {
		module, version, ok := strings.Cut(v, "=")
		module, version = strings.TrimSpace(module), strings.TrimSpace(version)
		if !ok || module == "" || version == "" {
			return nil, fmt.Errorf("%w: version override %q must be module=version",
				ErrInvalidValue, v)
		}
		out[module] = version
	}

	return out, nil
}

// ParseThreads parses a comma-separated thread list such as "1,2,4".
func ParseThreads(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty list", ErrInvalidThreads)
	}

	parts := strings.Split(s, ",")
	threads := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w %q: empty entry", ErrInvalidThreads, s)
		}

		t, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidThreads, s, err)
		}
		if t < 1 {
			return nil, fmt.Errorf("%w %q: thread count %d must be at least 1",
				ErrInvalidThreads, s, t)
		}
		threads = append(threads, t)
	}

	return threads, nil
}
