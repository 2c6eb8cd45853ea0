package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/weiihann/cmapbench/harness"
)

// Columns is the CSV header, in record order. Durations are nanoseconds.
var Columns = []string{"name", "total_ops", "threads", "spent", "throughput", "latency"}

// CSVWriter is a harness.Sink that writes one CSV record per result and
// flushes after each, so partial runs still leave usable output.
type CSVWriter struct {
	w             *csv.Writer
	header        bool
	headerWritten bool
}

// NewCSVWriter writes records to w, preceded by a header row when header is
// true.
func NewCSVWriter(w io.Writer, header bool) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), header: header}
}

func (c *CSVWriter) Record(r harness.Result) error {
	if c.header && !c.headerWritten {
		if err := c.w.Write(Columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		c.headerWritten = true
	}

	rec := []string{
		r.Name,
		strconv.FormatUint(r.TotalOps, 10),
		strconv.Itoa(r.Threads),
		strconv.FormatInt(r.Spent.Nanoseconds(), 10),
		strconv.FormatFloat(r.Throughput, 'f', -1, 64),
		strconv.FormatInt(r.Latency.Nanoseconds(), 10),
	}

	if err := c.w.Write(rec); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	c.w.Flush()

	return c.w.Error()
}

// ReadCSV parses records written by CSVWriter. Header rows may appear
// anywhere, so the output of several runs can be concatenated.
func ReadCSV(r io.Reader) ([]harness.Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	cr.ReuseRecord = true

	var results []harness.Result

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		if rec[0] == Columns[0] && rec[1] == Columns[1] {
			continue
		}

		res, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		results = append(results, res)
	}
}

func parseRecord(rec []string) (harness.Result, error) {
	ops, err := strconv.ParseUint(rec[1], 10, 64)
	if err != nil {
		return harness.Result{}, fmt.Errorf("total_ops: %w", err)
	}

	threads, err := strconv.Atoi(rec[2])
	if err != nil {
		return harness.Result{}, fmt.Errorf("threads: %w", err)
	}

	spent, err := strconv.ParseInt(rec[3], 10, 64)
	if err != nil {
		return harness.Result{}, fmt.Errorf("spent: %w", err)
	}

	throughput, err := strconv.ParseFloat(rec[4], 64)
	if err != nil {
		return harness.Result{}, fmt.Errorf("throughput: %w", err)
	}

	latency, err := strconv.ParseInt(rec[5], 10, 64)
	if err != nil {
		return harness.Result{}, fmt.Errorf("latency: %w", err)
	}

	return harness.Result{
		Name:       rec[0],
		TotalOps:   ops,
		Threads:    threads,
		Spent:      time.Duration(spent),
		Throughput: throughput,
		Latency:    time.Duration(latency),
	}, nil
}
