package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/arkilian/tripload/internal/cfstore"
	"github.com/arkilian/tripload/internal/config"
	lderrors "github.com/arkilian/tripload/internal/errors"
	"github.com/arkilian/tripload/internal/observability"
	"github.com/arkilian/tripload/internal/stats"
	"github.com/arkilian/tripload/pkg/types"
)

const header = "ride_id,rideable_type,started_at,ended_at,start_station_name,start_station_id," +
	"end_station_name,end_station_id,start_lat,start_lng,end_lat,end_lng,member_casual"

func tripLine(id string) string {
	return id + ",classic_bike,2021-10-01 00:00:00,2021-10-01 00:10:00,A St,1.01,B St,2.02," +
		"40.7,-73.9,40.8,-73.8,member"
}

// writeInput writes a header followed by n trip lines.
func writeInput(t testing.TB, dir string, n int) string {
	t.Helper()
	lines := []string{header}
	for i := 0; i < n; i++ {
		lines = append(lines, tripLine(fmt.Sprintf("R%05d", i)))
	}
	path := filepath.Join(dir, fmt.Sprintf("trips-%d.csv", n))
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

// stepClock advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	var (
		mu  sync.Mutex
		now = time.Date(2021, 11, 3, 0, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func sqliteConfig(t *testing.T, input string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.Path = t.TempDir()
	cfg.Input.Path = input
	cfg.Benchmark.BatchSizes = []int{100}
	cfg.Benchmark.Repetitions = 1
	return cfg
}

// memStore is an in-memory store that counts distinct rows per table.
type memStore struct {
	tables map[string]map[string]bool
	closes int
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]map[string]bool)}
}

func (m *memStore) DisableTable(_ context.Context, table string) error {
	if _, ok := m.tables[table]; !ok {
		return cfstore.ErrTableNotFound
	}
	return nil
}

func (m *memStore) DeleteTable(_ context.Context, table string) error {
	delete(m.tables, table)
	return nil
}

func (m *memStore) CreateTable(_ context.Context, table string, _ []cfstore.FamilyDescriptor) error {
	m.tables[table] = make(map[string]bool)
	return nil
}

func (m *memStore) Apply(_ context.Context, table string, mutations []cfstore.Mutation) error {
	rows, ok := m.tables[table]
	if !ok {
		return cfstore.ErrTableNotFound
	}
	for _, mu := range mutations {
		rows[mu.Row] = true
	}
	return nil
}

func (m *memStore) CountRows(_ context.Context, table string) (int64, error) {
	return int64(len(m.tables[table])), nil
}

func (m *memStore) Close() error {
	m.closes++
	return nil
}

func memOpener(m *memStore) func(context.Context, config.StoreConfig) (cfstore.Store, error) {
	return func(context.Context, config.StoreConfig) (cfstore.Store, error) { return m, nil }
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := sqliteConfig(t, writeInput(t, dir, 2))

	runner := NewRunner(cfg, WithClock(stepClock(1500*time.Millisecond)))
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, ok := result.Get(100)
	if !ok {
		t.Fatal("missing entry for batch size 100")
	}
	want := stats.Summary{Mean: 1.5, Median: 1.5, Stdev: 0}
	if got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}

	out := filepath.Join(dir, "simulation_result.json")
	if err := WriteResult(out, result, cfg.Output.Indent); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read result: %v", err)
	}
	var decoded map[string]stats.Summary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded["100"] != want {
		t.Errorf("decoded result = %v", decoded)
	}
	if !strings.Contains(string(data), "\n      \"100\": {") {
		t.Errorf("expected 6-space indent, got:\n%s", data)
	}

	// The table holds exactly the data rows of the last repetition.
	store, err := cfstore.Open(context.Background(), cfg.Store)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()
	n, err := store.CountRows(context.Background(), cfg.QualifiedTable())
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountRows = %d, want 2", n)
	}
}

func TestRun_OneEntryPerBatchSize(t *testing.T) {
	mem := newMemStore()
	cfg := sqliteConfig(t, writeInput(t, t.TempDir(), 7))
	cfg.Benchmark.BatchSizes = []int{5, 1, 3}
	cfg.Benchmark.Repetitions = 3

	metrics := observability.NewRunMetrics()
	runner := NewRunner(cfg,
		WithOpener(memOpener(mem)),
		WithClock(stepClock(time.Second)),
		WithMetrics(metrics),
		WithRunID("test-run"),
	)
	if runner.RunID() != "test-run" {
		t.Errorf("RunID = %q", runner.RunID())
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Len() != 3 {
		t.Fatalf("Len = %d, want 3", result.Len())
	}
	sizes := result.BatchSizes()
	for i, want := range []int{5, 1, 3} {
		if sizes[i] != want {
			t.Errorf("BatchSizes()[%d] = %d, want %d", i, sizes[i], want)
		}
	}

	// One open per repetition, each closed again.
	if mem.closes != 9 {
		t.Errorf("store closed %d times, want 9", mem.closes)
	}

	for _, size := range []int{5, 1, 3} {
		label := fmt.Sprint(size)
		if got := testutil.ToFloat64(metrics.RowsWritten.WithLabelValues(label)); got != 21 {
			t.Errorf("rows written for %s = %v, want 21", label, got)
		}
		if got := testutil.ToFloat64(metrics.DurationMean.WithLabelValues(label)); got != 1 {
			t.Errorf("mean gauge for %s = %v, want 1", label, got)
		}
	}
	if got := testutil.CollectAndCount(metrics.RepetitionDuration); got != 3 {
		t.Errorf("duration histogram series = %d, want 3", got)
	}
}

func TestRunRepetition_WritesEqualRows(t *testing.T) {
	dir := t.TempDir()
	cfg := sqliteConfig(t, writeInput(t, dir, 5))

	tests := []struct {
		batchSize   int
		wantFlushes int
	}{
		{1, 5},
		{2, 3},
		{5, 1},
		{100, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("batch_%d", tt.batchSize), func(t *testing.T) {
			mem := newMemStore()
			runner := NewRunner(cfg, WithOpener(memOpener(mem)))

			rep, err := runner.RunRepetition(context.Background(), tt.batchSize, 1)
			if err != nil {
				t.Fatalf("RunRepetition failed: %v", err)
			}
			if rep.Rows != 5 {
				t.Errorf("Rows = %d, want 5", rep.Rows)
			}
			if rep.Flushes != tt.wantFlushes {
				t.Errorf("Flushes = %d, want %d", rep.Flushes, tt.wantFlushes)
			}
			n, _ := mem.CountRows(context.Background(), cfg.QualifiedTable())
			if n != 5 {
				t.Errorf("stored rows = %d, want 5", n)
			}
		})
	}
}

func TestRunRepetition_KeepHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noheader.csv")
	if err := os.WriteFile(path, []byte(tripLine("A")+"\n"+tripLine("B")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	cfg := sqliteConfig(t, path)
	cfg.Input.SkipHeader = false

	rep, err := NewRunner(cfg, WithOpener(memOpener(newMemStore()))).RunRepetition(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("RunRepetition failed: %v", err)
	}
	if rep.Rows != 2 {
		t.Errorf("Rows = %d, want 2", rep.Rows)
	}
}

func TestRunRepetition_BareQuoteInStationName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotes.csv")
	line := `R1,classic_bike,2021-10-01 00:00:00,2021-10-01 00:10:00,Joe's "Bike" Shop,1.01,B St,2.02,` +
		"40.7,-73.9,40.8,-73.8,member"
	if err := os.WriteFile(path, []byte(header+"\n"+line+"\n"), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	rep, err := NewRunner(sqliteConfig(t, path), WithOpener(memOpener(newMemStore()))).RunRepetition(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("RunRepetition failed: %v", err)
	}
	if rep.Rows != 1 {
		t.Errorf("Rows = %d, want 1", rep.Rows)
	}
}

func TestRun_MalformedRowAborts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	content := header + "\n" + tripLine("A") + "\nB,classic_bike,2021-10-01\n" + tripLine("C") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	mem := newMemStore()
	cfg := sqliteConfig(t, path)
	_, err := NewRunner(cfg, WithOpener(memOpener(mem))).Run(context.Background())
	if err == nil {
		t.Fatal("expected error for short row")
	}
	if lderrors.GetCode(err) != lderrors.CodeMalformedRow {
		t.Errorf("expected MALFORMED_ROW, got %v", err)
	}
	if !errors.Is(err, types.ErrShortRecord) {
		t.Errorf("error should wrap ErrShortRecord: %v", err)
	}
	if mem.closes != 1 {
		t.Errorf("store closed %d times, want 1", mem.closes)
	}
}

func TestRun_MissingInput(t *testing.T) {
	cfg := sqliteConfig(t, filepath.Join(t.TempDir(), "absent.csv"))
	_, err := NewRunner(cfg, WithOpener(memOpener(newMemStore()))).Run(context.Background())
	if lderrors.GetCode(err) != lderrors.CodeOpenFailed {
		t.Errorf("expected OPEN_FAILED, got %v", err)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	cfg := sqliteConfig(t, writeInput(t, t.TempDir(), 3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(cfg, WithOpener(memOpener(newMemStore()))).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResult_MarshalJSONOrder(t *testing.T) {
	r := NewResult()
	r.Set(1000, stats.Summary{Mean: 2, Median: 2, Stdev: 0.5})
	r.Set(100, stats.Summary{Mean: 1, Median: 1})
	r.Set(1000, stats.Summary{Mean: 3, Median: 3})

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"1000":{"mean":3,"median":3,"stdev":0},"100":{"mean":1,"median":1,"stdev":0}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestWriteResult_BadPath(t *testing.T) {
	err := WriteResult(filepath.Join(t.TempDir(), "missing", "out.json"), NewResult(), 6)
	if lderrors.GetCode(err) != lderrors.CodeWriteResultFailed {
		t.Errorf("expected WRITE_RESULT_FAILED, got %v", err)
	}
}

func TestRunRepetition_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	dir := t.TempDir()
	inputs := make(map[int]string)
	input := func(n int) string {
		if p, ok := inputs[n]; ok {
			return p
		}
		inputs[n] = writeInput(t, dir, n)
		return inputs[n]
	}

	properties.Property("every data row is written once, in ceil(R/size) flushes", prop.ForAll(
		func(rows, size int) bool {
			cfg := config.DefaultConfig()
			cfg.Input.Path = input(rows)
			mem := newMemStore()

			rep, err := NewRunner(cfg, WithOpener(memOpener(mem))).RunRepetition(context.Background(), size, 1)
			if err != nil {
				return false
			}
			n, _ := mem.CountRows(context.Background(), cfg.QualifiedTable())
			return rep.Rows == rows && int(n) == rows && rep.Flushes == (rows+size-1)/size
		},
		gen.IntRange(0, 40),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
