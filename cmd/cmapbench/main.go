// Package main provides the CLI entry point for cmapbench, a concurrent
// map benchmarking tool.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weiihann/cmapbench/adapter"
	"github.com/weiihann/cmapbench/config"
	"github.com/weiihann/cmapbench/harness"
	"github.com/weiihann/cmapbench/report"
	"github.com/weiihann/cmapbench/version"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(logger, level)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("cmapbench failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var global globalFlags

	root := &cobra.Command{
		Use:   "cmapbench",
		Short: "Concurrent map benchmarking tool",
		Long: `Cmapbench drives many concurrent map implementations through the same
mixed read/insert/remove/update workload at increasing thread counts and
reports throughput and latency for each.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setLevel(level, global.logLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&global.configPath, "config", "",
		"Path to a YAML config file")
	pf.StringVar(&global.logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	root.AddCommand(
		newBenchCmd(logger, level, &global),
		newSummaryCmd(),
		newListCmd(),
	)

	return root
}

func setLevel(level *slog.LevelVar, s string) error {
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return fmt.Errorf("parse log level %q: %w", s, err)
	}

	return nil
}

func newBenchCmd(
	logger *slog.Logger,
	level *slog.LevelVar,
	global *globalFlags,
) *cobra.Command {
	var (
		workloadName string
		operations   float64
		threads      string
		hasherName   string
		seed         uint64
		capacityLog2 int
		prefill      float64
		gcSleepMs    int
		gcCycles     int
		skip         []string
		csv          bool
		csvNoHeaders bool
		outputJSON   bool
		markdown     bool
		promTextfile string
		versions     []string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark every adapter under one workload",
		Long: `Run the selected workload against every adapter that is not skipped,
once per thread count, emitting one record per run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			values := make(map[string]any)
			set := func(flag, key string, v any) {
				if flags.Changed(flag) {
					values[key] = v
				}
			}

			set("workload", "workload", workloadName)
			set("operations", "operations", operations)
			set("hasher", "hasher", hasherName)
			set("seed", "seed", seed)
			set("capacity-log2", "capacity_log2", capacityLog2)
			set("prefill", "prefill", prefill)
			set("gc-sleep-ms", "gc_sleep_ms", gcSleepMs)
			set("gc-cycles", "gc_cycles", gcCycles)
			set("skip", "skip", skip)
			set("csv", "csv", csv)
			set("csv-no-headers", "csv_no_headers", csvNoHeaders)
			set("json", "json", outputJSON)
			set("markdown", "markdown", markdown)
			set("prom-textfile", "prom_textfile", promTextfile)
			set("version-override", "versions", versions)
			set("log-level", "log_level", global.logLevel)

			if flags.Changed("threads") {
				list, err := config.ParseThreads(threads)
				if err != nil {
					return err
				}
				values["threads"] = list
			}

			cfg, err := config.NewLoader(
				config.WithConfigFile(global.configPath),
				config.WithFlags(values),
			).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if err := setLevel(level, cfg.LogLevel); err != nil {
				return err
			}

			return runBenchmark(cmd.Context(), logger, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&workloadName, "workload", "read_heavy",
		"Workload preset: read_heavy, rapid_grow, exchange")
	flags.Float64Var(&operations, "operations", 1,
		"Measured operations as a multiple of the initial capacity")
	flags.StringVar(&threads, "threads", "",
		"Comma-separated thread counts (default: derived from CPU count)")
	flags.StringVar(&hasherName, "hasher", "std",
		"Hasher for hashing adapters: std, ahash, murmur3")
	flags.Uint64Var(&seed, "seed", 1,
		"Seed for key choice, operation choice and hasher")
	flags.IntVar(&capacityLog2, "capacity-log2", 0,
		"Initial capacity as log2 entries (0 = workload preset)")
	flags.Float64Var(&prefill, "prefill", -1,
		"Prefill fraction of the initial capacity (negative = workload preset)")
	flags.IntVar(&gcSleepMs, "gc-sleep-ms", 2000,
		"Delay before each quiescence cycle, in milliseconds")
	flags.IntVar(&gcCycles, "gc-cycles", 2,
		"Forced GC cycles per quiescence")
	flags.StringSliceVar(&skip, "skip", []string{"leftright"},
		"Skip adapters whose name starts with any of these")
	flags.BoolVar(&csv, "csv", false,
		"Write CSV records to stderr instead of text lines")
	flags.BoolVar(&csvNoHeaders, "csv-no-headers", false,
		"Omit the CSV header row")
	flags.BoolVar(&outputJSON, "json", false,
		"Write all results as JSON to stdout at the end")
	flags.BoolVar(&markdown, "markdown", false,
		"Write markdown comparison tables to stdout at the end")
	flags.StringVar(&promTextfile, "prom-textfile", "",
		"Write Prometheus gauges to this file at the end")
	flags.StringSliceVar(&versions, "version-override", nil,
		"Display version overrides as module=version")

	return cmd
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.Config,
	stdout, stderr io.Writer,
) error {
	w, err := cfg.BuildWorkload()
	if err != nil {
		return err
	}

	h, err := cfg.BuildHasher()
	if err != nil {
		return err
	}

	overrides, err := cfg.VersionOverrides()
	if err != nil {
		return err
	}

	registry := version.FromBuildInfo()
	registry.Merge(overrides)

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("workload", cfg.Workload),
		slog.Float64("operations", w.Operations),
		slog.Int("capacity_log2", int(w.CapacityLog2)),
		slog.Float64("prefill", w.PrefillFraction),
		slog.String("hasher", string(h.Kind())),
		slog.Any("threads", cfg.Threads),
		slog.Any("skip", cfg.Skip),
	)

	var (
		sinks     []harness.Sink
		collector harness.Collector
		metrics   *report.Metrics
	)

	if cfg.CSV {
		sinks = append(sinks, report.NewCSVWriter(stderr, !cfg.CSVNoHeaders))
	} else {
		sinks = append(sinks, report.NewTextWriter(stderr))
	}

	if cfg.JSON || cfg.Markdown {
		sinks = append(sinks, &collector)
	}

	if cfg.PromTextfile != "" {
		metrics = report.NewMetrics(cfg.Workload)
		sinks = append(sinks, metrics)
	}

	progress := stdout
	if cfg.JSON || cfg.Markdown {
		progress = stderr
	}

	runner := harness.NewRunner[uint64](harness.RunConfig{
		Workload: w,
		Threads:  cfg.Threads,
		Skip:     cfg.Skip,
		Hasher:   h,
		GCSleep:  cfg.GCSleep(),
		GCCycles: cfg.GCCycles,
	}, harness.Tee(sinks...), progress, logger)

	if err := runner.Run(ctx, adapter.All[uint64](registry)); err != nil {
		return fmt.Errorf("benchmark: %w", err)
	}

	if cfg.JSON {
		if err := report.GenerateJSON(stdout, collector.Results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	}

	if cfg.Markdown {
		if err := report.Generate(stdout, collector.Results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.PromTextfile); err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

func newSummaryCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize CSV records read from stdin",
		Long: `Read CSV records written by "bench --csv" from stdin, possibly several
runs concatenated, and write markdown comparison tables to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := report.ReadCSV(cmd.InOrStdin())
			if err != nil {
				return err
			}

			if outputJSON {
				return report.GenerateJSON(cmd.OutOrStdout(), results)
			}

			return report.Generate(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false,
		"Output results as JSON instead of tables")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List adapters in run order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, a := range adapter.All[uint64](version.FromBuildInfo()) {
				quiesce := ""
				if a.Quiesce {
					quiesce = "\t[quiesce]"
				}
				if _, err := fmt.Fprintf(out, "%s%s\n", a.Name, quiesce); err != nil {
					return err
				}
			}

			return nil
		},
	}
}
