package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/weiihann/cmapbench/collection"
	"github.com/weiihann/cmapbench/hasher"
	"github.com/weiihann/cmapbench/workload"
)

// RunConfig holds the parameters shared by every run of a pass.
type RunConfig struct {
	// Workload is the template for each run; its Threads is overwritten.
	Workload workload.Workload
	// Threads is the thread-count schedule. Empty means DefaultThreads
	// for the available CPUs.
	Threads []int
	// Skip excludes every adapter whose name starts with one of these.
	Skip     []string
	Hasher   hasher.Hasher
	GCSleep  time.Duration
	GCCycles int
}

// Runner drives adapters through construct, prefill, measure, and
// quiescence for each thread count.
type Runner[K collection.Key] struct {
	Config RunConfig
	Sink   Sink
	Logger *slog.Logger
	// Progress receives "-- name" lines, one per adapter. May be nil.
	Progress io.Writer

	collect func()
	reclaim func(cycles int)
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner that reports to sink.
func NewRunner[K collection.Key](
	cfg RunConfig,
	sink Sink,
	progress io.Writer,
	logger *slog.Logger,
) *Runner[K] {
	return &Runner[K]{
		Config:   cfg,
		Sink:     sink,
		Logger:   logger,
		Progress: progress,
		collect:  runtime.GC,
		reclaim:  forceGC,
		sleep:    sleepCtx,
	}
}

// DefaultThreads returns the thread-count schedule for n CPUs. It always
// starts with 1; above 10 CPUs it steps by 2, above 16 by 4.
func DefaultThreads(n int) []int {
	if n <= 10 {
		threads := make([]int, 0, max(n, 1))
		for t := 1; t <= max(n, 1); t++ {
			threads = append(threads, t)
		}

		return threads
	}

	step := 2
	if n > 16 {
		step = 4
	}

	threads := []int{1}
	for t := step; t <= n; t += step {
		threads = append(threads, t)
	}

	return threads
}

// Skipped reports whether name starts with any non-empty entry of skip.
func Skipped(name string, skip []string) bool {
	for _, s := range skip {
		if s != "" && strings.HasPrefix(name, s) {
			return true
		}
	}

	return false
}

// Run benchmarks each adapter in order. A construction or prefill error
// aborts the whole pass. The context is only checked between runs.
func (r *Runner[K]) Run(ctx context.Context, adapters []collection.Adapter[K]) error {
	threads := r.Config.Threads
	if len(threads) == 0 {
		threads = DefaultThreads(runtime.NumCPU())
	}

	for _, a := range adapters {
		if Skipped(a.Name, r.Config.Skip) {
			r.progress("-- %s [skipped]", a.Name)
			r.Logger.Debug("skipping adapter", slog.String("adapter", a.Name))

			continue
		}

		r.progress("-- %s", a.Name)

		if err := r.runAdapter(ctx, a, threads); err != nil {
			return fmt.Errorf("adapter %s: %w", a.Name, err)
		}
	}

	return nil
}

func (r *Runner[K]) runAdapter(
	ctx context.Context,
	a collection.Adapter[K],
	threads []int,
) error {
	logger := r.Logger.With(slog.String("adapter", a.Name))

	for _, t := range threads {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := r.runOnce(ctx, a, t)
		if err != nil {
			return fmt.Errorf("threads=%d: %w", t, err)
		}

		logger.Info("run finished",
			slog.Int("threads", res.Threads),
			slog.Uint64("total_ops", res.TotalOps),
			slog.Duration("spent", res.Spent),
			slog.Float64("throughput", res.Throughput),
		)

		if err := r.Sink.Record(res); err != nil {
			return fmt.Errorf("record result: %w", err)
		}

		// The dropped table is garbage for every adapter. Only flagged
		// adapters wait for deferred reclamation before collecting.
		if !a.Quiesce {
			r.collect()

			continue
		}

		logger.Debug("quiescing",
			slog.Duration("sleep", r.Config.GCSleep),
			slog.Int("cycles", r.Config.GCCycles),
		)

		if err := r.sleep(ctx, r.Config.GCSleep); err != nil {
			return err
		}
		r.reclaim(r.Config.GCCycles)
	}

	return nil
}

// runOnce measures a fresh collection. The collection is dropped on return
// so nothing carries over into the next thread count.
func (r *Runner[K]) runOnce(
	ctx context.Context,
	a collection.Adapter[K],
	threads int,
) (Result, error) {
	w := r.Config.Workload
	w.Threads = threads

	if err := w.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid workload: %w", err)
	}

	c, err := a.New(int(w.InitialCapacity()), r.Config.Hasher)
	if err != nil {
		return Result{}, fmt.Errorf("construct: %w", err)
	}

	if err := workload.Prefill(ctx, w, c); err != nil {
		return Result{}, fmt.Errorf("prefill: %w", err)
	}

	m := workload.Measure(w, c)

	return Result{
		Name:       a.Name,
		TotalOps:   m.TotalOps,
		Threads:    threads,
		Spent:      m.Spent,
		Throughput: m.Throughput,
		Latency:    m.Latency,
	}, nil
}

func (r *Runner[K]) progress(format string, args ...any) {
	if r.Progress == nil {
		return
	}
	fmt.Fprintf(r.Progress, format+"\n", args...)
}

// forceGC runs cycles full collections so garbage left by lock-free node
// churn is swept before the next timer starts, then returns freed memory
// to the OS.
func forceGC(cycles int) {
	if cycles <= 0 {
		return
	}

	for i := 0; i < cycles; i++ {
		runtime.GC()
	}
	debug.FreeOSMemory()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
