package analysis

import (
	"fmt"
)

// LatencyComparison compares the latency samples of two scenarios, e.g.
// uncached against cached reads.
type LatencyComparison struct {
	Baseline       string
	Candidate      string
	BaselineStats  *DescriptiveStats
	CandidateStats *DescriptiveStats
	MannWhitney    *MannWhitneyResult
	EffectSize     *EffectSize
	BootstrapCI    *BootstrapResult

	// Speedup is the baseline mean over the candidate mean, or 0 when the
	// candidate mean is 0.
	Speedup float64
}

// CompareLatencies performs a full statistical comparison of two samples.
func CompareLatencies(
	baseline string, baseSample []float64,
	candidate string, candSample []float64,
	bootstrapIterations int,
	confidence float64,
) *LatencyComparison {
	c := &LatencyComparison{
		Baseline:       baseline,
		Candidate:      candidate,
		BaselineStats:  Describe(baseSample),
		CandidateStats: Describe(candSample),
		MannWhitney:    MannWhitneyU(baseSample, candSample),
		EffectSize:     ComputeEffectSize(baseSample, candSample),
		BootstrapCI:    BootstrapConfidenceInterval(baseSample, candSample, bootstrapIterations, confidence, 1),
	}
	if c.CandidateStats.Mean > 0 {
		c.Speedup = c.BaselineStats.Mean / c.CandidateStats.Mean
	}
	return c
}

// Faster reports whether the candidate is faster with statistical confidence.
func (c *LatencyComparison) Faster() bool {
	return c.MannWhitney.Significant && c.CandidateStats.Mean < c.BaselineStats.Mean
}

// Summary returns a human-readable summary of the comparison.
func (c *LatencyComparison) Summary() string {
	sig := "not statistically significant"
	if c.MannWhitney.Significant {
		sig = fmt.Sprintf("statistically significant (p=%.4f)", c.MannWhitney.PValue)
	}

	return fmt.Sprintf(
		"%s vs %s:\n"+
			"  %s: mean=%.1fµs, p50=%.1fµs, p99=%.1fµs\n"+
			"  %s: mean=%.1fµs, p50=%.1fµs, p99=%.1fµs\n"+
			"  Speedup: %.1fx\n"+
			"  Effect size: %.2f (%s)\n"+
			"  Result: %s",
		c.Baseline, c.Candidate,
		c.Baseline, c.BaselineStats.Mean, c.BaselineStats.P50, c.BaselineStats.P99,
		c.Candidate, c.CandidateStats.Mean, c.CandidateStats.P50, c.CandidateStats.P99,
		c.Speedup,
		c.EffectSize.CohensD, c.EffectSize.Interpretation,
		sig,
	)
}
