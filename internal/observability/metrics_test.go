package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/arkilian/tripload/internal/stats"
)

func TestRunMetrics_ObserveRepetition(t *testing.T) {
	m := NewRunMetrics()

	m.ObserveRepetition(100, 1.5, 2000, 20)
	m.ObserveRepetition(100, 2.5, 2000, 20)
	m.ObserveRepetition(1000, 1.0, 2000, 2)

	if got := testutil.ToFloat64(m.RowsWritten.WithLabelValues("100")); got != 4000 {
		t.Errorf("rows_written{100} = %v, want 4000", got)
	}
	if got := testutil.ToFloat64(m.Flushes.WithLabelValues("1000")); got != 2 {
		t.Errorf("batch_flushes{1000} = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.RepetitionDuration); n != 2 {
		t.Errorf("expected 2 histogram series, got %d", n)
	}
}

func TestRunMetrics_SetSummary(t *testing.T) {
	m := NewRunMetrics()
	m.SetSummary(5000, stats.Summary{Mean: 2, Median: 1.5, Stdev: 0.25})

	if got := testutil.ToFloat64(m.DurationMean.WithLabelValues("5000")); got != 2 {
		t.Errorf("mean = %v", got)
	}
	if got := testutil.ToFloat64(m.DurationMedian.WithLabelValues("5000")); got != 1.5 {
		t.Errorf("median = %v", got)
	}
	if got := testutil.ToFloat64(m.DurationStdev.WithLabelValues("5000")); got != 0.25 {
		t.Errorf("stdev = %v", got)
	}
}

func TestRunMetrics_Push(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotBody   bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody = r.ContentLength != 0
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewRunMetrics()
	m.ObserveRepetition(100, 1.0, 10, 1)

	if err := m.Push(context.Background(), srv.URL, "tripload", "run-1"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if !strings.Contains(gotPath, "/metrics/job/tripload") || !strings.Contains(gotPath, "run_id/run-1") {
		t.Errorf("unexpected push path %q", gotPath)
	}
	if !gotBody {
		t.Error("push should carry a metrics body")
	}
}

func TestRunMetrics_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewRunMetrics()
	if err := m.Push(context.Background(), srv.URL, "tripload", "run-1"); err == nil {
		t.Error("expected error on 500 from pushgateway")
	}
}
