// Package report formats benchmark results into comparison tables and
// record streams.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/weiihann/cmapbench/harness"
)

// ErrNoResults is returned when there is nothing to report.
var ErrNoResults = errors.New("no results to report")

// Generate writes a markdown comparison for the given results: one table per
// thread count ranking adapters by throughput, then a scaling table with one
// row per adapter and one column per thread count.
func Generate(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return ErrNoResults
	}

	threads := threadCounts(results)
	names := adapterNames(results)

	fmt.Fprintln(w, "## Benchmark Results")

	for _, t := range threads {
		runs := byThreads(results, t)
		slices.SortStableFunc(runs, func(a, b harness.Result) int {
			switch {
			case a.Throughput > b.Throughput:
				return -1
			case a.Throughput < b.Throughput:
				return 1
			}

			return 0
		})

		best := runs[0].Throughput

		fmt.Fprintln(w)
		fmt.Fprintf(w, "### %d %s\n", t, plural(t, "thread", "threads"))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Adapter | Throughput | Latency | Spent | Ops | vs Fastest |")
		fmt.Fprintln(w, "|---------|------------|---------|-------|-----|------------|")

		for _, r := range runs {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %d | %s |\n",
				r.Name,
				formatThroughput(r.Throughput),
				formatDuration(r.Latency),
				formatDuration(r.Spent),
				r.TotalOps,
				formatRatio(best, r.Throughput),
			)
		}
	}

	if len(threads) < 2 {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Scaling (throughput)")
	fmt.Fprintln(w)

	var header, rule strings.Builder
	header.WriteString("| Adapter |")
	rule.WriteString("|---------|")
	for _, t := range threads {
		fmt.Fprintf(&header, " %d |", t)
		rule.WriteString("------|")
	}
	fmt.Fprintln(w, header.String())
	fmt.Fprintln(w, rule.String())

	for _, name := range names {
		var row strings.Builder
		fmt.Fprintf(&row, "| %s |", name)
		for _, t := range threads {
			r, ok := find(results, name, t)
			if !ok {
				row.WriteString(" - |")

				continue
			}
			fmt.Fprintf(&row, " %s |", formatThroughput(r.Throughput))
		}
		fmt.Fprintln(w, row.String())
	}

	return nil
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	if results == nil {
		results = []harness.Result{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

func threadCounts(results []harness.Result) []int {
	var threads []int
	for _, r := range results {
		if !slices.Contains(threads, r.Threads) {
			threads = append(threads, r.Threads)
		}
	}
	slices.Sort(threads)

	return threads
}

// adapterNames lists names in first-seen order.
func adapterNames(results []harness.Result) []string {
	var names []string
	for _, r := range results {
		if !slices.Contains(names, r.Name) {
			names = append(names, r.Name)
		}
	}

	return names
}

func byThreads(results []harness.Result, threads int) []harness.Result {
	var out []harness.Result
	for _, r := range results {
		if r.Threads == threads {
			out = append(out, r)
		}
	}

	return out
}

// find returns the last result for (name, threads), so a re-run in a
// concatenated stream wins.
func find(results []harness.Result, name string, threads int) (harness.Result, bool) {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Name == name && results[i].Threads == threads {
			return results[i], true
		}
	}

	return harness.Result{}, false
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}

// formatRatio reports how many times slower than best a result is.
func formatRatio(best, throughput float64) string {
	if best <= 0 || throughput <= 0 {
		return "-"
	}

	return fmt.Sprintf("%.2fx", best/throughput)
}

func formatThroughput(opsPerSec float64) string {
	switch {
	case opsPerSec <= 0:
		return "-"
	case opsPerSec >= 1e9:
		return fmt.Sprintf("%.2f Gop/s", opsPerSec/1e9)
	case opsPerSec >= 1e6:
		return fmt.Sprintf("%.2f Mop/s", opsPerSec/1e6)
	case opsPerSec >= 1e3:
		return fmt.Sprintf("%.2f Kop/s", opsPerSec/1e3)
	}

	return fmt.Sprintf("%.0f op/s", opsPerSec)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	}

	return fmt.Sprintf("%.2fs", d.Seconds())
}
