package loadgen

import (
	"sort"
)

// Metrics contains derived metrics of a run.
type Metrics struct {
	TotalRequests int
	Throughput    float64 // requests per second
	ErrorRate     float64 // percent of requests that failed
	HitRate       float64 // percent of cached reads served from the cache

	// Locality metrics.
	UniqueKeys       int
	KeyConcentration float64 // Gini coefficient of key popularity.
	TopKeyPct        float64 // Percentage of requests on the top 10% of keys.
}

// ComputeMetrics computes derived metrics from a result.
func ComputeMetrics(r *Result) *Metrics {
	total := r.Reads + r.Writes + r.Errors
	m := &Metrics{
		TotalRequests: total,
		UniqueKeys:    len(r.KeyHits),
		HitRate:       r.Stats.HitRate * 100,
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		m.Throughput = float64(total) / secs
	}
	if total > 0 {
		m.ErrorRate = float64(r.Errors) / float64(total) * 100
	}
	if len(r.KeyHits) > 0 {
		m.KeyConcentration = computeGini(r.KeyHits)
		m.TopKeyPct = computeTopKeyPct(r.KeyHits, total, 0.1)
	}
	return m
}

func computeGini(hits map[int]int) float64 {
	values := make([]int, 0, len(hits))
	for _, v := range hits {
		values = append(values, v)
	}
	sort.Ints(values)

	n := float64(len(values))
	var sum, weighted float64
	for i, v := range values {
		sum += float64(v)
		weighted += float64(i+1) * float64(v)
	}
	if sum == 0 {
		return 0
	}
	return (2*weighted)/(n*sum) - (n+1)/n
}

func computeTopKeyPct(hits map[int]int, total int, topFraction float64) float64 {
	if total == 0 {
		return 0
	}

	counts := make([]int, 0, len(hits))
	for _, h := range hits {
		counts = append(counts, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))

	top := int(float64(len(counts)) * topFraction)
	if top < 1 {
		top = 1
	}
	var topHits int
	for _, h := range counts[:min(top, len(counts))] {
		topHits += h
	}
	return float64(topHits) / float64(total) * 100
}
