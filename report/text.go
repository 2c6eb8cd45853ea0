package report

import (
	"fmt"
	"io"

	"github.com/weiihann/cmapbench/harness"
)

// TextWriter writes one tab-separated line per result.
type TextWriter struct {
	w io.Writer
}

func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

func (t *TextWriter) Record(r harness.Result) error {
	_, err := fmt.Fprintf(t.w,
		"total_ops=%d\tthreads=%d\tspent=%v\tlatency=%v\tthroughput=%.0fop/s\n",
		r.TotalOps, r.Threads, r.Spent, r.Latency, r.Throughput,
	)

	return err
}
