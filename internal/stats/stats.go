// Package stats summarizes repeated timing samples.
package stats

import (
	"errors"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ErrNoSamples is returned when summarizing an empty sample set.
var ErrNoSamples = errors.New("stats: no samples")

// Summary holds the aggregate statistics of a sample set, in seconds.
type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Stdev  float64 `json:"stdev"`
}

// Summarize computes the mean, median and sample standard deviation
// (N-1 denominator). A single sample has a standard deviation of 0.
func Summarize(samples []float64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}

	s := Summary{
		Mean:   stat.Mean(samples, nil),
		Median: Median(samples),
	}
	if len(samples) > 1 {
		s.Stdev = stat.StdDev(samples, nil)
	}
	return s, nil
}

// Median returns the middle value of samples, averaging the two middle
// values for an even count. It does not modify samples.
func Median(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
