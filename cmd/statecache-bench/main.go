// Package main provides the statecache-bench CLI tool for measuring what
// the cache buys over reading the state source directly.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soroban-registry/statecache"
	"github.com/soroban-registry/statecache/benchmark/analysis"
	"github.com/soroban-registry/statecache/benchmark/loadgen"
	"github.com/soroban-registry/statecache/benchmark/reporting"
	"github.com/soroban-registry/statecache/fx/statecachefx"
	"github.com/soroban-registry/statecache/internal/fetch/simfetch"
)

var (
	workload      loadgen.Workload
	fetchDelay    time.Duration
	writeDelay    time.Duration
	ttl           time.Duration
	capacity      int
	shardStrategy string
	outputFormat  string
	outputFile    string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "statecache-bench",
	Short: "Benchmark cached against uncached contract state reads",
	Long: `statecache-bench drives a synthetic contract state workload against a
simulated slow state source, once reading around the cache and once through
it, and compares the read latency of both runs.

Examples:
  # Run with defaults
  statecache-bench run

  # Skewed key popularity with some writes
  statecache-bench run --skew 1.3 --write-ratio 0.1

  # Output as markdown report
  statecache-bench run --format markdown --output report.md`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark",
	RunE:  runBenchmark,
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&workload.Contracts, "contracts", 10, "distinct contracts")
	f.IntVar(&workload.KeysPerContract, "keys", 20, "state keys per contract")
	f.IntVarP(&workload.Requests, "requests", "n", 5000, "requests per scenario")
	f.IntVar(&workload.Concurrency, "concurrency", 8, "concurrent workers")
	f.Float64Var(&workload.WriteRatio, "write-ratio", 0, "fraction of requests that are writes")
	f.IntVar(&workload.PayloadBytes, "payload", 256, "write payload size in bytes")
	f.Float64Var(&workload.Skew, "skew", 0, "Zipf exponent of key popularity (<= 1 is uniform)")
	f.Uint64Var(&workload.Seed, "seed", 1, "random seed")
	f.DurationVar(&fetchDelay, "delay", 2*time.Millisecond, "simulated state source read latency")
	f.DurationVar(&writeDelay, "write-delay", 4*time.Millisecond, "simulated state source write latency")
	f.DurationVar(&ttl, "ttl", statecache.DefaultTTL, "cache entry TTL")
	f.IntVar(&capacity, "capacity", statecache.DefaultMaxCapacity, "cache capacity")
	f.StringVar(&shardStrategy, "shard-strategy", "fnv32", "cache shard strategy: fnv32, xxhash")
	f.StringVarP(&outputFormat, "format", "f", "text", "output format: text, markdown")
	f.StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	f.BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	if err := workload.Validate(); err != nil {
		return err
	}

	results, err := runScenarios(cmd.Context(), workload)
	if err != nil {
		return err
	}
	comparison := analysis.CompareLatencies(
		results[0].Name, results[0].ReadLatencies,
		results[1].Name, results[1].ReadLatencies,
		10000, // Bootstrap iterations.
		0.95,  // 95% confidence.
	)

	var output io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	switch outputFormat {
	case "markdown":
		writeMarkdownReport(output, workload, results, comparison)
	default:
		writeTextReport(output, workload, results, comparison)
	}
	return nil
}

// runScenarios runs w once around the cache and once through it, each on
// a fresh client and state source.
func runScenarios(ctx context.Context, w loadgen.Workload) ([]*loadgen.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var results []*loadgen.Result
	for _, useCache := range []bool{false, true} {
		name := "uncached"
		if useCache {
			name = "cached"
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Running %s scenario...\n", name)
		}

		sim := simfetch.New(
			simfetch.WithDelay(fetchDelay),
			simfetch.WithWriteDelay(writeDelay),
			simfetch.WithGenerator(simfetch.JSONGenerator(nil)),
		)
		client, err := statecache.New(
			statecache.WithFetcher(sim),
			statecache.WithTTL(ttl),
			statecache.WithMaxCapacity(capacity),
			statecache.WithShardStrategy(statecachefx.ShardStrategy(shardStrategy)),
		)
		if err != nil {
			return nil, fmt.Errorf("creating client: %w", err)
		}

		w.UseCache = useCache
		res, err := loadgen.Run(ctx, client, name, w)
		client.Shutdown(ctx)
		_ = client.Close()
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func writeTextReport(w io.Writer, wl loadgen.Workload, results []*loadgen.Result, comp *analysis.LatencyComparison) {
	fmt.Fprintf(w, "Statecache Read Latency Benchmark\n")
	fmt.Fprintf(w, "=================================\n\n")
	fmt.Fprintf(w, "Keys: %d contracts x %d keys\n", wl.Contracts, wl.KeysPerContract)
	fmt.Fprintf(w, "Requests: %d (%d workers)\n", wl.Requests, wl.Concurrency)
	fmt.Fprintf(w, "Write ratio: %.2f\n\n", wl.WriteRatio)

	fmt.Fprintf(w, "Results:\n")
	fmt.Fprintf(w, "--------\n\n")

	for _, res := range results {
		m := loadgen.ComputeMetrics(res)
		d := analysis.Describe(res.ReadLatencies)
		fmt.Fprintf(w, "%s:\n", res.Name)
		fmt.Fprintf(w, "  Throughput:     %.0f req/s\n", m.Throughput)
		fmt.Fprintf(w, "  Read p50/p99:   %.1fµs / %.1fµs\n", d.P50, d.P99)
		fmt.Fprintf(w, "  Hit rate:       %.1f%%\n", m.HitRate)
		fmt.Fprintf(w, "  Errors:         %d\n", res.Errors)
		fmt.Fprintf(w, "  Unique keys:    %d (gini %.2f)\n\n", m.UniqueKeys, m.KeyConcentration)
	}

	fmt.Fprintf(w, "Statistical Analysis:\n")
	fmt.Fprintf(w, "---------------------\n\n")
	fmt.Fprintln(w, comp.Summary())
}

func writeMarkdownReport(w io.Writer, wl loadgen.Workload, results []*loadgen.Result, comp *analysis.LatencyComparison) {
	report := reporting.NewMarkdownReport(w)
	report.WriteHeader("Statecache Read Latency Benchmark")
	report.WriteMethodology(wl)
	report.WriteSummaryTable(results)
	report.WriteComparison(comp)
	for _, res := range results {
		report.WriteDistributionChart(res.Name, res.ReadLatencies)
	}
	report.WriteFooter()
}
