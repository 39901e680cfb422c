// Package observability provides Prometheus metrics for benchmark runs.
package observability

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/arkilian/tripload/internal/stats"
)

// RunMetrics collects per-repetition and per-batch-size measurements on a
// private registry so that runs never mix with the default registry.
type RunMetrics struct {
	registry *prometheus.Registry

	RepetitionDuration *prometheus.HistogramVec
	RowsWritten        *prometheus.CounterVec
	Flushes            *prometheus.CounterVec
	DurationMean       *prometheus.GaugeVec
	DurationMedian     *prometheus.GaugeVec
	DurationStdev      *prometheus.GaugeVec
}

// NewRunMetrics creates and registers all run collectors.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{registry: prometheus.NewRegistry()}

	m.RepetitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tripload",
			Name:      "repetition_duration_seconds",
			Help:      "Wall-clock duration of one full table load",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"batch_size"},
	)

	m.RowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripload",
			Name:      "rows_written_total",
			Help:      "Total number of trip rows written to the store",
		},
		[]string{"batch_size"},
	)

	m.Flushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripload",
			Name:      "batch_flushes_total",
			Help:      "Total number of batch round trips to the store",
		},
		[]string{"batch_size"},
	)

	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: "tripload", Name: name, Help: help},
			[]string{"batch_size"},
		)
	}
	m.DurationMean = gauge("duration_mean_seconds", "Mean repetition duration per batch size")
	m.DurationMedian = gauge("duration_median_seconds", "Median repetition duration per batch size")
	m.DurationStdev = gauge("duration_stdev_seconds", "Sample standard deviation of repetition duration per batch size")

	m.registry.MustRegister(
		m.RepetitionDuration,
		m.RowsWritten,
		m.Flushes,
		m.DurationMean,
		m.DurationMedian,
		m.DurationStdev,
	)
	return m
}

// Registry returns the registry holding the run collectors.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRepetition records one completed load.
func (m *RunMetrics) ObserveRepetition(batchSize int, seconds float64, rows, flushes int) {
	label := strconv.Itoa(batchSize)
	m.RepetitionDuration.WithLabelValues(label).Observe(seconds)
	m.RowsWritten.WithLabelValues(label).Add(float64(rows))
	m.Flushes.WithLabelValues(label).Add(float64(flushes))
}

// SetSummary publishes the aggregate statistics of a batch size.
func (m *RunMetrics) SetSummary(batchSize int, s stats.Summary) {
	label := strconv.Itoa(batchSize)
	m.DurationMean.WithLabelValues(label).Set(s.Mean)
	m.DurationMedian.WithLabelValues(label).Set(s.Median)
	m.DurationStdev.WithLabelValues(label).Set(s.Stdev)
}

// Push sends the registry to a Prometheus Pushgateway, grouped by run id.
func (m *RunMetrics) Push(ctx context.Context, url, job, runID string) error {
	err := push.New(url, job).
		Gatherer(m.registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("observability: push to %s failed: %w", url, err)
	}
	return nil
}
