package workload

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiihann/cmapbench/collection"
)

// Measurement aggregates one measured phase.
type Measurement struct {
	TotalOps   uint64
	Spent      time.Duration
	Throughput float64       // operations per second
	Latency    time.Duration // Spent / TotalOps, rounded up
}

func newMeasurement(ops uint64, spent time.Duration) Measurement {
	m := Measurement{TotalOps: ops, Spent: spent}

	if ops > 0 && spent > 0 {
		m.Throughput = float64(ops) / spent.Seconds()
		m.Latency = time.Duration(math.Ceil(float64(spent) / float64(ops)))
	}

	return m
}

// prefillChunk is the number of keys one prefill task inserts.
const prefillChunk = 1 << 14

// Prefill inserts the first PrefillCount key indices, split across up to
// Threads goroutines. It is not timed. An insert reporting an existing key
// means the adapter broke the contract and is returned as an error.
func Prefill[K collection.Key](
	ctx context.Context,
	w Workload,
	c collection.Collection[K],
) error {
	n := w.PrefillCount()
	if n == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.Threads, 1))

	for lo := uint64(0); lo < n; lo += prefillChunk {
		if gctx.Err() != nil {
			break
		}

		hi := min(lo+prefillChunk, n)

		g.Go(func() error {
			h := c.Pin()
			for i := lo; i < hi; i++ {
				if !h.Insert(collection.KeyOf[K](i)) {
					return fmt.Errorf("prefill: key index %d already present", i)
				}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// Measure runs the timed phase: Threads workers each pin a handle, wait on
// a common start signal, and execute their share of TotalOps. The clock
// runs from the start signal until every worker has returned.
//
// Measure never stops early. A worker that panics takes the process down.
func Measure[K collection.Key](w Workload, c collection.Collection[K]) Measurement {
	var (
		ready sync.WaitGroup
		done  sync.WaitGroup
		start = make(chan struct{})
	)

	ready.Add(w.Threads)
	done.Add(w.Threads)

	for t := 0; t < w.Threads; t++ {
		go func(t int) {
			defer done.Done()

			wk := newWorker[K](w, t, c.Pin())
			ready.Done()
			<-start

			wk.run(w.share(t))
		}(t)
	}

	ready.Wait()

	began := time.Now()
	close(start)
	done.Wait()
	spent := time.Since(began)

	return newMeasurement(w.TotalOps(), spent)
}

type opKind uint8

const (
	opRead opKind = iota
	opInsert
	opRemove
	opUpdate
	opUpsert
)

// worker issues operations for one goroutine.
//
// Fresh inserts use indices prefill + t + threads*j, so workers never
// insert the same fresh key. Other operations pick uniformly among the
// indices the worker knows may exist: the prefill range plus everything
// inserted so far at the worker's own pace.
type worker[K collection.Key] struct {
	h        collection.Handle[K]
	rng      *rand.Rand
	bounds   [5]uint64 // cumulative weights in opKind order
	total    uint64
	thread   uint64
	threads  uint64
	prefill  uint64
	inserted uint64
}

func newWorker[K collection.Key](w Workload, t int, h collection.Handle[K]) *worker[K] {
	m := w.Mix
	weights := [5]uint64{
		uint64(m.Read), uint64(m.Insert), uint64(m.Remove),
		uint64(m.Update), uint64(m.Upsert),
	}

	wk := &worker[K]{
		h:       h,
		rng:     rand.New(rand.NewPCG(w.Seed, uint64(t))),
		thread:  uint64(t),
		threads: uint64(w.Threads),
		prefill: w.PrefillCount(),
	}

	var sum uint64
	for i, wt := range weights {
		sum += wt
		wk.bounds[i] = sum
	}
	wk.total = sum

	return wk
}

func (wk *worker[K]) nextOp() opKind {
	r := wk.rng.Uint64N(wk.total)
	for i, b := range wk.bounds {
		if r < b {
			return opKind(i)
		}
	}

	return opRead
}

func (wk *worker[K]) freshKey() K {
	i := wk.prefill + wk.thread + wk.threads*wk.inserted
	wk.inserted++

	return collection.KeyOf[K](i)
}

func (wk *worker[K]) knownKey() K {
	span := wk.prefill + wk.threads*wk.inserted
	if span == 0 {
		return collection.KeyOf[K](0)
	}

	return collection.KeyOf[K](wk.rng.Uint64N(span))
}

func (wk *worker[K]) run(ops uint64) {
	h := wk.h

	for i := uint64(0); i < ops; i++ {
		switch wk.nextOp() {
		case opRead:
			h.Get(wk.knownKey())
		case opInsert:
			h.Insert(wk.freshKey())
		case opRemove:
			h.Remove(wk.knownKey())
		case opUpdate:
			h.Update(wk.knownKey())
		case opUpsert:
			if k := wk.knownKey(); !h.Insert(k) {
				h.Update(k)
			}
		}
	}
}
