package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/weiihann/cmapbench/hasher"
	"github.com/weiihann/cmapbench/workload"
)

// testPrefix keeps the developer's own CMAPBENCH_ variables out of tests.
const testPrefix = "CMAPBENCH_TEST_"

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cmapbench.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader(WithEnvPrefix(testPrefix)).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("got %+v, want %+v", cfg, Default())
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
workload: rapid_grow
operations: 0.5
threads: [1, 2, 8]
hasher: ahash
gc_sleep_ms: 10
skip: [leftright, std]
capacity_log2: 12
prefill: 0.25
csv: true
versions:
  - github.com/puzpuzpuz/xsync/v3=v3.0.0
`)

	cfg, err := NewLoader(WithEnvPrefix(testPrefix), WithConfigFile(path)).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workload != "rapid_grow" {
		t.Errorf("workload = %q, want rapid_grow", cfg.Workload)
	}
	if cfg.Operations != 0.5 {
		t.Errorf("operations = %v, want 0.5", cfg.Operations)
	}
	if !reflect.DeepEqual(cfg.Threads, []int{1, 2, 8}) {
		t.Errorf("threads = %v, want [1 2 8]", cfg.Threads)
	}
	if cfg.Hasher != "ahash" {
		t.Errorf("hasher = %q, want ahash", cfg.Hasher)
	}
	if cfg.GCSleep() != 10*time.Millisecond {
		t.Errorf("gc sleep = %v, want 10ms", cfg.GCSleep())
	}
	if !reflect.DeepEqual(cfg.Skip, []string{"leftright", "std"}) {
		t.Errorf("skip = %v", cfg.Skip)
	}
	if !cfg.CSV {
		t.Error("csv should be true")
	}
	// Untouched keys keep their defaults.
	if cfg.GCCycles != Default().GCCycles {
		t.Errorf("gc_cycles = %d, want default %d", cfg.GCCycles, Default().GCCycles)
	}

	versions, err := cfg.VersionOverrides()
	if err != nil {
		t.Fatal(err)
	}
	if versions["github.com/puzpuzpuz/xsync/v3"] != "v3.0.0" {
		t.Errorf("versions = %v", versions)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := NewLoader(WithEnvPrefix(testPrefix), WithConfigFile("/nonexistent/cmapbench.yaml")).Load()
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "workload: exchange\ngc_sleep_ms: 100\nhasher: murmur3\n")

	t.Setenv(testPrefix+"GC_SLEEP_MS", "5")
	t.Setenv(testPrefix+"THREADS", "1,4")
	t.Setenv(testPrefix+"HASHER", "ahash")

	cfg, err := NewLoader(
		WithEnvPrefix(testPrefix),
		WithConfigFile(path),
		WithFlags(map[string]any{"hasher": "std"}),
	).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workload != "exchange" {
		t.Errorf("workload = %q, want exchange from file", cfg.Workload)
	}
	if cfg.GCSleepMs != 5 {
		t.Errorf("gc_sleep_ms = %d, want 5 from env", cfg.GCSleepMs)
	}
	if !reflect.DeepEqual(cfg.Threads, []int{1, 4}) {
		t.Errorf("threads = %v, want [1 4] from env", cfg.Threads)
	}
	if cfg.Hasher != "std" {
		t.Errorf("hasher = %q, want std from flags", cfg.Hasher)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"unknown workload", "workload: write_heavy\n", ErrUnknownWorkload},
		{"unknown hasher", "hasher: fnv\n", ErrUnknownHasher},
		{"zero thread", "threads: [1, 0]\n", ErrInvalidThreads},
		{"negative operations", "operations: -1\n", ErrInvalidValue},
		{"capacity too large", "capacity_log2: 41\n", ErrInvalidValue},
		{"negative capacity", "capacity_log2: -3\n", ErrInvalidValue},
		{"prefill above one", "prefill: 1.5\n", ErrInvalidValue},
		{"negative gc cycles", "gc_cycles: -1\n", ErrInvalidValue},
		{"malformed version", "versions: [xsync]\n", ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := NewLoader(WithEnvPrefix(testPrefix), WithConfigFile(path)).Load()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateNaN(t *testing.T) {
	cfg := Default()
	cfg.Operations = math.NaN()
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("got %v, want ErrInvalidValue", err)
	}
}

func TestBuildWorkload(t *testing.T) {
	cfg := Default()
	cfg.Workload = "RapidGrow"
	cfg.Operations = 2
	cfg.Seed = 9

	w, err := cfg.BuildWorkload()
	if err != nil {
		t.Fatal(err)
	}

	preset, _ := workload.Preset(workload.RapidGrow)
	if w.Mix != preset.Mix {
		t.Errorf("mix = %+v, want %+v", w.Mix, preset.Mix)
	}
	if w.CapacityLog2 != 25 || w.PrefillFraction != 0 {
		t.Errorf("preset capacity/prefill not kept: %+v", w)
	}
	if w.Operations != 2 || w.Seed != 9 {
		t.Errorf("operations/seed not applied: %+v", w)
	}

	cfg.CapacityLog2 = 10
	cfg.Prefill = 0.5

	w, err = cfg.BuildWorkload()
	if err != nil {
		t.Fatal(err)
	}
	if w.CapacityLog2 != 10 || w.PrefillFraction != 0.5 {
		t.Errorf("overrides not applied: %+v", w)
	}
}

func TestBuildHasher(t *testing.T) {
	cfg := Default()
	cfg.Hasher = "Murmur3"

	h, err := cfg.BuildHasher()
	if err != nil {
		t.Fatal(err)
	}
	if h.Kind() != hasher.Murmur3 {
		t.Errorf("kind = %q, want murmur3", h.Kind())
	}

	cfg.Hasher = "sip"
	if _, err := cfg.BuildHasher(); !errors.Is(err, ErrUnknownHasher) {
		t.Errorf("got %v, want ErrUnknownHasher", err)
	}
}

func TestParseThreads(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"1", []int{1}, false},
		{"1,2,4", []int{1, 2, 4}, false},
		{" 1, 8 ", []int{1, 8}, false},
		{"", nil, true},
		{"1,,2", nil, true},
		{"1,x", nil, true},
		{"0", nil, true},
		{"-2", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseThreads(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidThreads) {
				t.Errorf("ParseThreads(%q): got err %v, want ErrInvalidThreads", tt.in, err)
			}

			continue
		}
		if err != nil {
			t.Errorf("ParseThreads(%q): unexpected error %v", tt.in, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseThreads(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
