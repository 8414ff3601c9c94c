package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soroban-registry/statecache/internal/config"
)

var (
	// Global flags.
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "statecache",
	Short: "Cached contract state reads with per-contract resource metering",
	Long: `Statecache fronts a slow contract state source with a bounded, expiring
cache, meters the resource cost of state writes per contract, and drains
in-flight requests on shutdown.

Examples:
  # Run the HTTP service
  statecache serve --config statecache.yaml

  # Read one key through the cache and show timings
  statecache read CDLZ... balance --cache --repeat 5

  # Show cache statistics of a running service
  statecache stats --addr http://localhost:8080

  # Load state from a JSON lines file into the snapshot table
  statecache seed --file state.jsonl --snapshot`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig returns the configured settings, or the defaults when no
// config file was given.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// exitCode is returned by commands that need a specific process exit status.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}
