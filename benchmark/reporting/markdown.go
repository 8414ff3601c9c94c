// Package reporting provides report generation for benchmark results.
package reporting

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/soroban-registry/statecache/benchmark/analysis"
	"github.com/soroban-registry/statecache/benchmark/loadgen"
)

// MarkdownReport generates benchmark reports in Markdown format.
type MarkdownReport struct {
	w   io.Writer
	now func() time.Time
}

// NewMarkdownReport creates a new Markdown report writer.
func NewMarkdownReport(w io.Writer) *MarkdownReport {
	return &MarkdownReport{w: w, now: time.Now}
}

// WriteHeader writes the report header.
func (r *MarkdownReport) WriteHeader(title string) {
	fmt.Fprintf(r.w, "# %s\n\n", title)
	fmt.Fprintf(r.w, "Generated: %s\n\n", r.now().Format(time.RFC3339))
}

// WriteMethodology writes the methodology section.
func (r *MarkdownReport) WriteMethodology(w loadgen.Workload) {
	fmt.Fprintln(r.w, "## Methodology")
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "- **Contracts:** %d x %d keys\n", w.Contracts, w.KeysPerContract)
	fmt.Fprintf(r.w, "- **Requests:** %d over %d workers\n", w.Requests, w.Concurrency)
	fmt.Fprintf(r.w, "- **Write ratio:** %.0f%% (%d-byte payloads)\n", w.WriteRatio*100, w.PayloadBytes)
	if w.Skew > 1 {
		fmt.Fprintf(r.w, "- **Key popularity:** Zipf, s=%.2f\n", w.Skew)
	} else {
		fmt.Fprintln(r.w, "- **Key popularity:** uniform")
	}
	fmt.Fprintln(r.w, "- **Metric:** Read latency in microseconds (lower is better)")
	fmt.Fprintln(r.w, "- **Statistical tests:** Mann-Whitney U (non-parametric), Cohen's d effect size")
	fmt.Fprintln(r.w)
}

// WriteSummaryTable writes one row per run, in the given order.
func (r *MarkdownReport) WriteSummaryTable(results []*loadgen.Result) {
	fmt.Fprintln(r.w, "## Summary")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "| Scenario | Req/s | P50 (µs) | P90 (µs) | P99 (µs) | Hit Rate | Errors |")
	fmt.Fprintln(r.w, "|----------|-------|----------|----------|----------|----------|--------|")

	for _, res := range results {
		m := loadgen.ComputeMetrics(res)
		d := analysis.Describe(res.ReadLatencies)
		fmt.Fprintf(r.w, "| %s | %.0f | %.1f | %.1f | %.1f | %.1f%% | %.2f%% |\n",
			res.Name, m.Throughput, d.P50, d.P90, d.P99, m.HitRate, m.ErrorRate)
	}
	fmt.Fprintln(r.w)
}

// WriteComparison writes a detailed comparison section.
func (r *MarkdownReport) WriteComparison(comp *analysis.LatencyComparison) {
	fmt.Fprintf(r.w, "## %s vs %s\n\n", comp.Baseline, comp.Candidate)

	fmt.Fprintln(r.w, "### Descriptive Statistics")
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "| Metric | %s | %s |\n", comp.Baseline, comp.Candidate)
	fmt.Fprintln(r.w, "|--------|------|------|")
	b, c := comp.BaselineStats, comp.CandidateStats
	fmt.Fprintf(r.w, "| Samples | %d | %d |\n", b.N, c.N)
	fmt.Fprintf(r.w, "| Mean | %.1f | %.1f |\n", b.Mean, c.Mean)
	fmt.Fprintf(r.w, "| P50 | %.1f | %.1f |\n", b.P50, c.P50)
	fmt.Fprintf(r.w, "| P99 | %.1f | %.1f |\n", b.P99, c.P99)
	fmt.Fprintf(r.w, "| Std Dev | %.1f | %.1f |\n", b.StdDev, c.StdDev)
	fmt.Fprintf(r.w, "| Min | %.1f | %.1f |\n", b.Min, c.Min)
	fmt.Fprintf(r.w, "| Max | %.1f | %.1f |\n", b.Max, c.Max)
	fmt.Fprintln(r.w)

	fmt.Fprintln(r.w, "### Statistical Analysis")
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "- **Mann-Whitney U:** %.2f (z=%.2f, p=%.4f)\n",
		comp.MannWhitney.U, comp.MannWhitney.Z, comp.MannWhitney.PValue)
	fmt.Fprintf(r.w, "- **Effect size (Cohen's d):** %.2f (%s)\n",
		comp.EffectSize.CohensD, comp.EffectSize.Interpretation)
	fmt.Fprintf(r.w, "- **%.0f%% CI for mean difference:** [%.1f, %.1f] µs\n",
		comp.BootstrapCI.Confidence*100, comp.BootstrapCI.LowerBound, comp.BootstrapCI.UpperBound)
	fmt.Fprintf(r.w, "- **Speedup:** %.1fx\n", comp.Speedup)
	fmt.Fprintln(r.w)

	fmt.Fprintln(r.w, "### Conclusion")
	fmt.Fprintln(r.w)
	if comp.Faster() {
		fmt.Fprintf(r.w, "**%s** is significantly faster than %s ", comp.Candidate, comp.Baseline)
		fmt.Fprintf(r.w, "(p < 0.05, effect size: %s).\n", comp.EffectSize.Interpretation)
	} else {
		fmt.Fprintf(r.w, "No statistically significant speedup of %s over %s.\n", comp.Candidate, comp.Baseline)
	}
	fmt.Fprintln(r.w)
}

// WriteDistributionChart writes an ASCII latency histogram.
func (r *MarkdownReport) WriteDistributionChart(name string, data []float64) {
	fmt.Fprintf(r.w, "### %s Distribution\n\n", name)
	fmt.Fprintln(r.w, "```")

	hist, lo, width := makeHistogram(data, 10)
	maxCount := 0
	for _, count := range hist {
		maxCount = max(maxCount, count)
	}

	const barWidth = 40
	for i, count := range hist {
		barLen := 0
		if maxCount > 0 {
			barLen = count * barWidth / maxCount
		}
		fmt.Fprintf(r.w, "%8.1f-%8.1f │ %s %d\n",
			lo+float64(i)*width, lo+float64(i+1)*width, strings.Repeat("█", barLen), count)
	}

	fmt.Fprintln(r.w, "```")
	fmt.Fprintln(r.w)
}

// makeHistogram buckets data into equal-width bins, returning the counts,
// the lower bound of the first bin and the bin width.
func makeHistogram(data []float64, buckets int) ([]int, float64, float64) {
	hist := make([]int, buckets)
	if len(data) == 0 {
		return hist, 0, 0
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(buckets)

	for _, v := range data {
		b := int((v - lo) / width)
		if b >= buckets {
			b = buckets - 1
		}
		hist[b]++
	}
	return hist, lo, width
}

// WriteFooter writes the report footer.
func (r *MarkdownReport) WriteFooter() {
	fmt.Fprintln(r.w, "---")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "*Report generated by statecache-bench*")
}
