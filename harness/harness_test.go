package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/weiihann/cmapbench/collection"
	"github.com/weiihann/cmapbench/hasher"
	"github.com/weiihann/cmapbench/workload"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mapTable is a minimal mutex map adapter for driving the runner.
type mapTable struct {
	mu    sync.Mutex
	items map[uint64]uint64
}

func (m *mapTable) Pin() collection.Handle[uint64] { return m }

func (m *mapTable) Get(k uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[k]

	return ok
}

func (m *mapTable) Insert(k uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[k]; ok {
		return false
	}
	m.items[k] = 0

	return true
}

func (m *mapTable) Remove(k uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[k]; !ok {
		return false
	}
	delete(m.items, k)

	return true
}

func (m *mapTable) Update(k uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[k]; !ok {
		return false
	}
	m.items[k]++

	return true
}

// testAdapter counts constructions and the capacities requested.
func testAdapter(name string, quiesce bool, built *[]int) collection.Adapter[uint64] {
	return collection.Adapter[uint64]{
		Name:    name,
		Quiesce: quiesce,
		New: func(capacity int, _ hasher.Hasher) (collection.Collection[uint64], error) {
			if built != nil {
				*built = append(*built, capacity)
			}

			return &mapTable{items: make(map[uint64]uint64, capacity)}, nil
		},
	}
}

func rapidGrow(t *testing.T, capLog2 uint8) workload.Workload {
	t.Helper()

	w, err := workload.Preset(workload.RapidGrow)
	if err != nil {
		t.Fatal(err)
	}
	w.CapacityLog2 = capLog2

	return w
}

type quiesceLog struct {
	sleeps   []time.Duration
	cycles   []int
	collects int
}

func newTestRunner(
	cfg RunConfig,
	sink Sink,
	progress io.Writer,
	q *quiesceLog,
) *Runner[uint64] {
	r := NewRunner[uint64](cfg, sink, progress, discardLogger())
	r.collect = func() { q.collects++ }
	r.reclaim = func(cycles int) { q.cycles = append(q.cycles, cycles) }
	r.sleep = func(_ context.Context, d time.Duration) error {
		q.sleeps = append(q.sleeps, d)

		return nil
	}

	return r
}

func TestDefaultThreads(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, []int{1}},
		{1, []int{1}},
		{8, []int{1, 2, 3, 4, 5, 6, 7, 8}},
		{10, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{11, []int{1, 2, 4, 6, 8, 10}},
		{12, []int{1, 2, 4, 6, 8, 10, 12}},
		{16, []int{1, 2, 4, 6, 8, 10, 12, 14, 16}},
		{17, []int{1, 4, 8, 12, 16}},
		{32, []int{1, 4, 8, 12, 16, 20, 24, 28, 32}},
	}

	for _, tt := range tests {
		if got := DefaultThreads(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("DefaultThreads(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestSkipped(t *testing.T) {
	skip := []string{"leftright", "", "xsync"}

	tests := []struct {
		name string
		want bool
	}{
		{"leftright", true},
		{"xsync@v3.5.1 - MapOf", true},
		{"std(map, Mutex)", false},
		{"haxmap@v1.4.1", false},
		{"left", false},
	}

	for _, tt := range tests {
		if got := Skipped(tt.name, skip); got != tt.want {
			t.Errorf("Skipped(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if Skipped("anything", []string{""}) {
		t.Error("empty skip entry must not match")
	}
}

func TestRunEndToEnd(t *testing.T) {
	var (
		built []int
		col   Collector
		q     quiesceLog
	)

	cfg := RunConfig{
		Workload: rapidGrow(t, 10),
		Threads:  []int{1, 2},
	}

	r := newTestRunner(cfg, &col, nil, &q)
	err := r.Run(context.Background(), []collection.Adapter[uint64]{
		testAdapter("std(map, Mutex)", false, &built),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(col.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(col.Results))
	}

	for i, res := range col.Results {
		if res.Name != "std(map, Mutex)" {
			t.Errorf("result %d: name = %q", i, res.Name)
		}
		if res.Threads != cfg.Threads[i] {
			t.Errorf("result %d: threads = %d, want %d", i, res.Threads, cfg.Threads[i])
		}
		if res.TotalOps != 1024 {
			t.Errorf("result %d: total_ops = %d, want 1024", i, res.TotalOps)
		}
		if res.Throughput < 0 {
			t.Errorf("result %d: throughput = %v, want >= 0", i, res.Throughput)
		}
		if res.Latency <= 0 {
			t.Errorf("result %d: latency = %v, want > 0", i, res.Latency)
		}
	}

	if !reflect.DeepEqual(built, []int{1024, 1024}) {
		t.Errorf("constructions = %v, want a fresh 1024-entry table per run", built)
	}
}

func TestRunSkipsByPrefix(t *testing.T) {
	var (
		col      Collector
		q        quiesceLog
		progress bytes.Buffer
		skipped  []int
	)

	cfg := RunConfig{
		Workload: rapidGrow(t, 6),
		Threads:  []int{1, 2, 3},
		Skip:     []string{"leftright"},
	}

	r := newTestRunner(cfg, &col, &progress, &q)
	err := r.Run(context.Background(), []collection.Adapter[uint64]{
		testAdapter("leftright", false, &skipped),
		testAdapter("std(map, RWMutex)", false, nil),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(skipped) != 0 {
		t.Errorf("skipped adapter was constructed %d times", len(skipped))
	}
	if len(col.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(col.Results))
	}
	for _, res := range col.Results {
		if res.Name == "leftright" {
			t.Error("skipped adapter produced a result")
		}
	}

	want := "-- leftright [skipped]\n-- std(map, RWMutex)\n"
	if progress.String() != want {
		t.Errorf("progress = %q, want %q", progress.String(), want)
	}
}

func TestRunQuiescesOnlyFlaggedAdapters(t *testing.T) {
	var (
		col Collector
		q   quiesceLog
	)

	cfg := RunConfig{
		Workload: rapidGrow(t, 6),
		Threads:  []int{1, 2},
		GCSleep:  5 * time.Millisecond,
		GCCycles: 3,
	}

	r := newTestRunner(cfg, &col, nil, &q)
	err := r.Run(context.Background(), []collection.Adapter[uint64]{
		testAdapter("locked", false, nil),
		testAdapter("lockfree", true, nil),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(col.Results) != 4 {
		t.Fatalf("got %d results, want 4", len(col.Results))
	}
	if !reflect.DeepEqual(q.cycles, []int{3, 3}) {
		t.Errorf("reclaim cycles = %v, want [3 3]", q.cycles)
	}
	if !reflect.DeepEqual(q.sleeps, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}) {
		t.Errorf("sleeps = %v, want two 5ms sleeps", q.sleeps)
	}
	if q.collects != 2 {
		t.Errorf("plain collections = %d, want one per unflagged run", q.collects)
	}
}

func TestRunPrefillingWorkload(t *testing.T) {
	var (
		col    Collector
		q      quiesceLog
		tables []*mapTable
	)

	w, err := workload.Preset(workload.ReadHeavy)
	if err != nil {
		t.Fatal(err)
	}
	w.CapacityLog2 = 10

	a := collection.Adapter[uint64]{
		Name: "std(map, Mutex)",
		New: func(capacity int, _ hasher.Hasher) (collection.Collection[uint64], error) {
			m := &mapTable{items: make(map[uint64]uint64, capacity)}
			tables = append(tables, m)

			return m, nil
		},
	}

	r := newTestRunner(RunConfig{Workload: w, Threads: []int{1, 2}}, &col, nil, &q)
	if err := r.Run(context.Background(), []collection.Adapter[uint64]{a}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(col.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(col.Results))
	}
	for i, res := range col.Results {
		if res.TotalOps != 1024 {
			t.Errorf("result %d: total_ops = %d, want 1024", i, res.TotalOps)
		}
		if res.Latency <= 0 {
			t.Errorf("result %d: latency = %v, want > 0", i, res.Latency)
		}
	}

	// 768 keys are prefilled; one percent inserts and removes each only
	// nudge that over 1024 operations.
	if len(tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(tables))
	}
	for i, m := range tables {
		if n := len(m.items); n < 768-64 || n > 768+64 {
			t.Errorf("table %d: %d entries, want about 768", i, n)
		}
	}
}

func TestRunConstructionErrorAbortsPass(t *testing.T) {
	var (
		col Collector
		q   quiesceLog
	)

	errBoom := errors.New("boom")
	failing := collection.Adapter[uint64]{
		Name: "broken",
		New: func(int, hasher.Hasher) (collection.Collection[uint64], error) {
			return nil, errBoom
		},
	}

	cfg := RunConfig{Workload: rapidGrow(t, 4), Threads: []int{1}}

	r := newTestRunner(cfg, &col, nil, &q)
	err := r.Run(context.Background(), []collection.Adapter[uint64]{
		testAdapter("first", false, nil),
		failing,
		testAdapter("never", false, nil),
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("got %v, want errBoom", err)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error %q does not name the adapter", err)
	}

	if len(col.Results) != 1 || col.Results[0].Name != "first" {
		t.Errorf("results = %+v, want only the first adapter", col.Results)
	}
}

func TestRunSinkError(t *testing.T) {
	var q quiesceLog

	errSink := errors.New("disk full")
	sink := SinkFunc(func(Result) error { return errSink })

	cfg := RunConfig{Workload: rapidGrow(t, 4), Threads: []int{1}}

	r := newTestRunner(cfg, sink, nil, &q)
	err := r.Run(context.Background(), []collection.Adapter[uint64]{
		testAdapter("a", false, nil),
	})
	if !errors.Is(err, errSink) {
		t.Errorf("got %v, want errSink", err)
	}
}

func TestRunCanceledBeforeStart(t *testing.T) {
	var (
		col Collector
		q   quiesceLog
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RunConfig{Workload: rapidGrow(t, 4), Threads: []int{1, 2}}

	r := newTestRunner(cfg, &col, nil, &q)
	err := r.Run(ctx, []collection.Adapter[uint64]{testAdapter("a", false, nil)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if len(col.Results) != 0 {
		t.Errorf("got %d results after cancel, want 0", len(col.Results))
	}
}

func TestRunRejectsInvalidWorkload(t *testing.T) {
	var (
		col Collector
		q   quiesceLog
	)

	w := rapidGrow(t, 4)
	w.PrefillFraction = 2

	r := newTestRunner(RunConfig{Workload: w, Threads: []int{1}}, &col, nil, &q)
	if err := r.Run(context.Background(), []collection.Adapter[uint64]{
		testAdapter("a", false, nil),
	}); err == nil {
		t.Error("expected error for prefill fraction 2")
	}
}

func TestTee(t *testing.T) {
	var a, b Collector

	errB := errors.New("b failed")
	failing := SinkFunc(func(Result) error { return errB })

	sink := Tee(&a, failing, &b)
	err := sink.Record(Result{Name: "x", Threads: 2})

	if !errors.Is(err, errB) {
		t.Errorf("got %v, want errB", err)
	}
	if len(a.Results) != 1 || len(b.Results) != 1 {
		t.Errorf("every sink must see the result: got %d and %d", len(a.Results), len(b.Results))
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Errorf("zero sleep: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
