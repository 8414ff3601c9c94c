package reporting

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/soroban-registry/statecache/benchmark/analysis"
	"github.com/soroban-registry/statecache/benchmark/loadgen"
)

func TestMarkdownReport(t *testing.T) {
	var buf bytes.Buffer
	r := NewMarkdownReport(&buf)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	uncached := []float64{2000, 2100, 1900, 2050, 1950, 2000, 2020, 1980}
	cached := []float64{50, 55, 45, 52, 48, 50, 51, 49}

	r.WriteHeader("Cache Benchmark")
	r.WriteMethodology(loadgen.Workload{Contracts: 2, KeysPerContract: 4, Requests: 8, Concurrency: 1})
	r.WriteSummaryTable([]*loadgen.Result{
		{Name: "uncached", Reads: 8, Duration: time.Second, ReadLatencies: uncached},
		{Name: "cached", Reads: 8, Duration: time.Second, ReadLatencies: cached},
	})
	r.WriteComparison(analysis.CompareLatencies("uncached", uncached, "cached", cached, 200, 0.95))
	r.WriteDistributionChart("cached", cached)
	r.WriteFooter()

	out := buf.String()
	for _, want := range []string{
		"# Cache Benchmark",
		"Generated: 2026-01-02T03:04:05Z",
		"- **Contracts:** 2 x 4 keys",
		"- **Key popularity:** uniform",
		"| uncached | 8 |",
		"| cached | 8 |",
		"## uncached vs cached",
		"- **Speedup:** 40.0x",
		"**cached** is significantly faster than uncached",
		"### cached Distribution",
		"statecache-bench",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestMakeHistogram(t *testing.T) {
	hist, lo, width := makeHistogram([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 5)
	if lo != 0 || width != 2 {
		t.Errorf("lo=%v width=%v, want 0, 2", lo, width)
	}
	want := []int{2, 2, 2, 2, 3}
	for i := range want {
		if hist[i] != want[i] {
			t.Errorf("hist = %v, want %v", hist, want)
			break
		}
	}

	hist, _, _ = makeHistogram([]float64{5, 5, 5}, 4)
	if hist[0] != 3 {
		t.Errorf("constant data hist = %v, want all in first bucket", hist)
	}
	if hist, _, _ := makeHistogram(nil, 3); len(hist) != 3 {
		t.Errorf("empty hist len = %d, want 3", len(hist))
	}
}
