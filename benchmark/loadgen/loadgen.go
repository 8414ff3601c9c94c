// Package loadgen drives a statecache client with a synthetic contract
// state workload and records per-request latency.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soroban-registry/statecache"
)

// Workload describes the requests a run issues.
type Workload struct {
	Contracts       int     // distinct contract ids
	KeysPerContract int     // distinct state keys per contract
	Requests        int     // total requests across all workers
	Concurrency     int     // concurrent workers
	WriteRatio      float64 // fraction of requests that are writes, in [0, 1]
	PayloadBytes    int     // size of each write payload
	UseCache        bool    // read through the cache
	// Skew is the Zipf exponent of key popularity; values <= 1 mean uniform.
	Skew float64
	Seed uint64
}

// Validate reports whether w can be run.
func (w Workload) Validate() error {
	switch {
	case w.Contracts < 1 || w.KeysPerContract < 1:
		return errors.New("loadgen: need at least one contract and one key")
	case w.Requests < 1:
		return errors.New("loadgen: need at least one request")
	case w.Concurrency < 1:
		return errors.New("loadgen: concurrency must be positive")
	case w.WriteRatio < 0 || w.WriteRatio > 1:
		return fmt.Errorf("loadgen: write ratio %v outside [0, 1]", w.WriteRatio)
	}
	return nil
}

func (w Workload) keySpace() int {
	return w.Contracts * w.KeysPerContract
}

// Result contains the outcome of one run.
type Result struct {
	Name     string
	Reads    int
	Writes   int
	Errors   int
	Duration time.Duration

	ReadLatencies  []float64 // microseconds, one per successful read
	WriteLatencies []float64 // microseconds, one per successful write
	KeyHits        map[int]int

	Stats statecache.StatsSnapshot
}

type workerResult struct {
	reads, writes, errors int
	readLat, writeLat     []float64
	keyHits               map[int]int
}

// Run issues w against client and aggregates the results. Request
// failures are counted, not returned; Run fails only on an invalid
// workload or when ctx ends.
func Run(ctx context.Context, client *statecache.Client, name string, w Workload) (*Result, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	payload := make([]byte, w.PayloadBytes)
	for i := range payload {
		payload[i] = 'a' + byte(i%26)
	}

	results := make([]workerResult, w.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()

	for i := 0; i < w.Concurrency; i++ {
		n := w.Requests / w.Concurrency
		if i < w.Requests%w.Concurrency {
			n++
		}
		g.Go(func() error {
			results[i] = work(gctx, client, w, n, uint64(i), payload)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loadgen: run %s: %w", name, err)
	}

	res := &Result{
		Name:     name,
		Duration: time.Since(start),
		KeyHits:  make(map[int]int),
		Stats:    client.Stats(),
	}
	for _, wr := range results {
		res.Reads += wr.reads
		res.Writes += wr.writes
		res.Errors += wr.errors
		res.ReadLatencies = append(res.ReadLatencies, wr.readLat...)
		res.WriteLatencies = append(res.WriteLatencies, wr.writeLat...)
		for k, v := range wr.keyHits {
			res.KeyHits[k] += v
		}
	}
	return res, nil
}

func work(ctx context.Context, client *statecache.Client, w Workload, n int, worker uint64, payload []byte) workerResult {
	rng := rand.New(rand.NewPCG(w.Seed, worker))
	next := keyPicker(rng, w)
	out := workerResult{keyHits: make(map[int]int)}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return out
		}
		k := next()
		out.keyHits[k]++
		contractID, key := KeyName(k, w.KeysPerContract)

		start := time.Now()
		if rng.Float64() < w.WriteRatio {
			_, err := client.Write(ctx, contractID, key, payload)
			if err != nil {
				out.errors++
				continue
			}
			out.writes++
			out.writeLat = append(out.writeLat, micros(time.Since(start)))
			continue
		}

		if _, err := client.Read(ctx, contractID, key, w.UseCache); err != nil {
			out.errors++
			continue
		}
		out.reads++
		out.readLat = append(out.readLat, micros(time.Since(start)))
	}
	return out
}

func keyPicker(rng *rand.Rand, w Workload) func() int {
	space := w.keySpace()
	if w.Skew > 1 && space > 1 {
		z := rand.NewZipf(rng, w.Skew, 1, uint64(space-1))
		return func() int { return int(z.Uint64()) }
	}
	return func() int { return rng.IntN(space) }
}

// KeyName maps a key index to its contract id and state key.
func KeyName(k, keysPerContract int) (contractID, key string) {
	return "C" + strconv.Itoa(k/keysPerContract), "key" + strconv.Itoa(k%keysPerContract)
}

func micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}
