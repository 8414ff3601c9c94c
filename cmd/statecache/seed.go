package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soroban-registry/statecache/fx/statecachefx"
	"github.com/soroban-registry/statecache/internal/fetch"
	"github.com/soroban-registry/statecache/internal/snapshot"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load contract state from a JSON lines file",
	Long: `Load contract state records into the fetch backend, the warm-up snapshot
table, or both. Each input line is a JSON object:

  {"contract_id":"CDLZ...","key":"balance","value":{"amount":100},"updated_at":"2026-01-02T03:04:05Z"}

The value is stored as its compact JSON encoding. updated_at is optional
and defaults to the time of seeding.

Examples:
  # Fill the snapshot table used for warm-up
  statecache seed --config statecache.yaml --file state.jsonl --snapshot

  # Write blobs to the configured disk, S3 or GCS backend
  statecache seed --config statecache.yaml --file state.jsonl --fetch`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

var (
	seedFile     string
	seedSnapshot bool
	seedFetch    bool
	seedBatch    int
)

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "-", "JSON lines input file (- for stdin)")
	seedCmd.Flags().BoolVar(&seedSnapshot, "snapshot", false, "write records to the snapshot table")
	seedCmd.Flags().BoolVar(&seedFetch, "fetch", false, "write records to the fetch backend")
	seedCmd.Flags().IntVar(&seedBatch, "batch", 500, "records per snapshot transaction")
	rootCmd.AddCommand(seedCmd)
}

type seedRecord struct {
	ContractID string          `json:"contract_id"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	if !seedSnapshot && !seedFetch {
		return errors.New("nothing to do: pass --snapshot, --fetch or both")
	}
	if seedBatch < 1 {
		seedBatch = 1
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var writer fetch.Writer
	if seedFetch {
		f, err := statecachefx.NewFetcher(ctx, cfg.Fetch)
		if err != nil {
			return fmt.Errorf("creating fetcher: %w", err)
		}
		defer f.Close()
		w, ok := f.(fetch.Writer)
		if !ok {
			return fmt.Errorf("fetch backend %q is read-only", cfg.Fetch.Backend)
		}
		writer = w
	}

	var flush func([]snapshot.Entry) error
	if seedSnapshot {
		src, err := statecachefx.NewSource(ctx, cfg.Snapshot)
		if err != nil {
			return fmt.Errorf("opening snapshot table: %w", err)
		}
		if src == nil {
			return errors.New("--snapshot needs snapshot.driver and snapshot.dsn in the config")
		}
		defer src.Close()
		flush = func(batch []snapshot.Entry) error { return src.Save(ctx, batch...) }
	}

	in := io.Reader(os.Stdin)
	if seedFile != "-" {
		file, err := os.Open(seedFile)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer file.Close()
		in = file
	}

	start := time.Now()
	n, err := seed(ctx, in, writer, flush, seedBatch)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d records in %s\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}

// seed reads JSON lines from in and stores each record through writer and
// flush, either of which may be nil.
func seed(ctx context.Context, in io.Reader, writer fetch.Writer, flush func([]snapshot.Entry) error, batchSize int) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		batch []snapshot.Entry
		count int
		line  int
	)
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec seedRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ContractID == "" || rec.Key == "" || len(rec.Value) == 0 {
			return count, fmt.Errorf("line %d: contract_id, key and value are required", line)
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = time.Now().UTC()
		}
		var value bytes.Buffer
		if err := json.Compact(&value, rec.Value); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}

		if writer != nil {
			if err := writer.Put(ctx, rec.ContractID, rec.Key, value.Bytes()); err != nil {
				return count, fmt.Errorf("line %d: writing state: %w", line, err)
			}
		}
		if flush != nil {
			batch = append(batch, snapshot.Entry{
				ContractID: rec.ContractID,
				Key:        rec.Key,
				Value:      value.Bytes(),
				UpdatedAt:  rec.UpdatedAt,
			})
			if len(batch) >= batchSize {
				if err := flush(batch); err != nil {
					return count, fmt.Errorf("saving snapshot batch: %w", err)
				}
				batch = batch[:0]
			}
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("reading input: %w", err)
	}
	if flush != nil && len(batch) > 0 {
		if err := flush(batch); err != nil {
			return count, fmt.Errorf("saving snapshot batch: %w", err)
		}
	}
	return count, nil
}
