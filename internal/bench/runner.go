// Package bench drives the batch-size load benchmark: for every batch size
// it recreates the table, loads the input file a number of times and
// summarizes the wall-clock durations.
package bench

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/tripload/internal/cfstore"
	"github.com/arkilian/tripload/internal/config"
	lderrors "github.com/arkilian/tripload/internal/errors"
	"github.com/arkilian/tripload/internal/ingest"
	"github.com/arkilian/tripload/internal/observability"
	"github.com/arkilian/tripload/internal/stats"
	"github.com/arkilian/tripload/internal/tripdata"
	"github.com/arkilian/tripload/pkg/types"
)

// separator frames the per-batch-size summary in the log.
var separator = strings.Repeat("===", 40)

// Repetition is the outcome of one timed load.
type Repetition struct {
	Duration time.Duration
	Rows     int
	Flushes  int
}

// Seconds returns the duration in seconds.
func (r Repetition) Seconds() float64 { return r.Duration.Seconds() }

// Option configures a Runner.
type Option func(*Runner)

// WithOpener replaces the store opener, mainly for tests.
func WithOpener(open ingest.OpenFunc) Option {
	return func(r *Runner) { r.open = open }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithMetrics records every repetition and summary in m.
func WithMetrics(m *observability.RunMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// Runner executes the benchmark described by a configuration.
type Runner struct {
	cfg     *config.Config
	open    ingest.OpenFunc
	now     func() time.Time
	metrics *observability.RunMetrics
	runID   string

	initializer *ingest.Initializer
	writer      *ingest.Writer
}

// NewRunner creates a runner. The configuration is not validated here.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}

	r.initializer = ingest.NewInitializer(cfg, r.open)
	r.writer = ingest.NewWriter(cfg.Store)
	return r
}

// RunID returns the identifier of this run.
func (r *Runner) RunID() string { return r.runID }

// Run measures every configured batch size Repetitions times, in order.
// The first failure aborts the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := NewResult()
	reps := r.cfg.Benchmark.Repetitions

	log.Printf("Run %s: batch sizes %v, %d repetitions, table %s",
		r.runID, r.cfg.Benchmark.BatchSizes, reps, r.initializer.Table())

	for _, batchSize := range r.cfg.Benchmark.BatchSizes {
		samples := make([]float64, 0, reps)

		for i := 1; i <= reps; i++ {
			rep, err := r.RunRepetition(ctx, batchSize, i)
			if err != nil {
				return nil, fmt.Errorf("batch_size %d, execution %d: %w", batchSize, i, err)
			}
			samples = append(samples, rep.Seconds())
			r.logPartial(samples)
		}

		summary, err := stats.Summarize(samples)
		if err != nil {
			return nil, lderrors.NewInternalError(fmt.Sprintf("summarize batch_size %d", batchSize), err)
		}
		result.Set(batchSize, summary)
		if r.metrics != nil {
			r.metrics.SetSummary(batchSize, summary)
		}

		log.Print(separator)
		log.Printf("Simulation ended for batch_size %d. Results: mean=%v median=%v stdev=%v",
			batchSize, summary.Mean, summary.Median, summary.Stdev)
		log.Print(separator)
	}

	log.Print(strings.Repeat("*", 79))
	log.Printf("Simulation ended. Results: %s", result)
	return result, nil
}

// RunRepetition recreates the table and loads the input file once with the
// given batch size. The duration covers connecting, table recreation,
// loading, the final send and closing the connection.
func (r *Runner) RunRepetition(ctx context.Context, batchSize, i int) (Repetition, error) {
	start := r.now()

	store, batch, err := r.initializer.Prepare(ctx, batchSize)
	if err != nil {
		return Repetition{}, err
	}
	log.Printf("Starting execution %d for batch_size: %d", i, batchSize)

	rows, err := r.load(ctx, batch)
	if err == nil {
		if sendErr := batch.Send(ctx); sendErr != nil {
			err = lderrors.NewStoreError(lderrors.CodeWriteFailed, "final send", sendErr)
		}
	}
	if err != nil {
		store.Close()
		return Repetition{}, err
	}

	if err := store.Close(); err != nil {
		return Repetition{}, lderrors.NewStoreError(lderrors.CodeConnectFailed, "close connection", err)
	}

	rep := Repetition{
		Duration: r.now().Sub(start),
		Rows:     rows,
		Flushes:  batch.Flushes(),
	}
	if r.metrics != nil {
		r.metrics.ObserveRepetition(batchSize, rep.Seconds(), rep.Rows, rep.Flushes)
	}

	log.Printf("Finished execution %d for batch_size: %d. Inserted row count: %d, duration: %v",
		i, batchSize, rep.Rows, rep.Seconds())
	return rep, nil
}

// load streams the input file into the batch and returns the number of
// data rows written. The file is closed before load returns.
func (r *Runner) load(ctx context.Context, batch *cfstore.Batch) (rows int, err error) {
	src, err := tripdata.Open(r.cfg.Input.Path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = lderrors.NewInputError(lderrors.CodeReadFailed, "close "+src.Path(), cerr)
		}
	}()

	skip := r.cfg.Input.SkipHeader
	for fields, readErr := range src.All() {
		if readErr != nil {
			return rows, readErr
		}
		if skip {
			skip = false
			continue
		}
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		rec, err := types.ParseTripRecord(fields)
		if err != nil {
			return rows, lderrors.NewInputError(lderrors.CodeMalformedRow,
				fmt.Sprintf("%s line %d", src.Path(), src.Line()), err).
				WithDetails(map[string]interface{}{"line": src.Line()})
		}
		if err := r.writer.InsertRow(ctx, batch, rec); err != nil {
			return rows, lderrors.NewStoreError(lderrors.CodeWriteFailed, "insert "+rec.RideID, err)
		}
		rows++
	}
	return rows, nil
}

// logPartial prints the running statistics after a repetition.
func (r *Runner) logPartial(samples []float64) {
	s, err := stats.Summarize(samples)
	if err != nil {
		return
	}
	log.Printf("Partial stats")
	log.Printf("Mean (partial): %v", s.Mean)
	if len(samples) > 1 {
		log.Printf("Stdev (partial): %v", s.Stdev)
	}
	log.Printf("Median (partial): %v", s.Median)
}
