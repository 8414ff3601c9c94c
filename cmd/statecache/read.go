package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soroban-registry/statecache"
	"github.com/soroban-registry/statecache/fx/statecachefx"
)

var readCmd = &cobra.Command{
	Use:   "read CONTRACT_ID KEY",
	Short: "Read one contract state key through the cache",
	Long: `Read a contract state key using the configured fetch backend, optionally
through a local cache, and report per-read latency and cache statistics.

Examples:
  # One uncached read
  statecache read CDLZ... balance

  # Five reads through the cache: one miss then four hits
  statecache read CDLZ... balance --cache --repeat 5 --timing`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

var (
	readUseCache bool
	readRepeat   int
	outputJSON   bool
	showTiming   bool
)

func init() {
	readCmd.Flags().BoolVar(&readUseCache, "cache", false, "read through the cache")
	readCmd.Flags().IntVar(&readRepeat, "repeat", 1, "number of reads")
	readCmd.Flags().BoolVar(&outputJSON, "json", false, "output cache statistics as JSON")
	readCmd.Flags().BoolVar(&showTiming, "timing", false, "show read timing")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	contractID, key := args[0], args[1]
	if readRepeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := cfg.Log.Logger(verbose)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fetcher, err := statecachefx.NewFetcher(ctx, cfg.Fetch)
	if err != nil {
		return fmt.Errorf("creating fetcher: %w", err)
	}

	opts := append(statecachefx.ClientOptions(cfg),
		statecache.WithFetcher(fetcher),
		statecache.WithLogger(log),
		statecache.WithJanitorInterval(0),
	)
	client, err := statecache.New(opts...)
	if err != nil {
		_ = fetcher.Close()
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Close()

	var value []byte
	for i := 0; i < readRepeat; i++ {
		start := time.Now()
		value, err = client.Read(ctx, contractID, key, readUseCache)
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		if showTiming {
			fmt.Fprintf(os.Stderr, "read %d: %s\n", i+1, time.Since(start))
		}
	}

	fmt.Println(string(value))

	st := client.Stats()
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	if showTiming {
		printStatsText(st)
	}
	return nil
}

func printStatsText(st statecache.StatsSnapshot) {
	fmt.Printf("Hits:               %d\n", st.Hits)
	fmt.Printf("Misses:             %d\n", st.Misses)
	fmt.Printf("Uncached:           %d\n", st.Uncached)
	fmt.Printf("Hit rate:           %.1f%%\n", st.HitRate*100)
	fmt.Printf("Avg hit latency:    %.1fµs\n", st.AvgCachedHitLatencyUs)
	fmt.Printf("Avg miss latency:   %.1fµs\n", st.AvgCacheMissLatencyUs)
	fmt.Printf("Avg uncached:       %.1fµs\n", st.AvgUncachedLatencyUs)
	fmt.Printf("Improvement factor: %.1fx\n", st.ImprovementFactor)
}
