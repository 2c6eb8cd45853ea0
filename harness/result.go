// Package harness runs every adapter through the benchmark schedule and
// hands one Result per (adapter, thread count) to a Sink.
package harness

import (
	"errors"
	"time"
)

// Result is one measured run. Field order is the record order used by every
// tabular output: name, total_ops, threads, spent, throughput, latency.
type Result struct {
	Name       string        `json:"name"`
	TotalOps   uint64        `json:"total_ops"`
	Threads    int           `json:"threads"`
	Spent      time.Duration `json:"spent"`
	Throughput float64       `json:"throughput"`
	Latency    time.Duration `json:"latency"`
}

// Sink consumes results as they are produced.
type Sink interface {
	Record(Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Result) error

func (f SinkFunc) Record(r Result) error { return f(r) }

// Tee sends each result to every sink in order and joins their errors.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(r Result) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Record(r); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(errs...)
	})
}

// Collector keeps every result in memory.
type Collector struct {
	Results []Result
}

func (c *Collector) Record(r Result) error {
	c.Results = append(c.Results, r)

	return nil
}
