package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/arkilian/tripload/internal/config"
	lderrors "github.com/arkilian/tripload/internal/errors"
)

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tripload.yaml")
	content := `
store:
  backend: sqlite
  path: /tmp/tripload
benchmark:
  batch_sizes: [10]
  repetitions: 4
input:
  path: from-file.csv
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("TRIPLOAD_REPETITIONS", "6")
	t.Setenv("TRIPLOAD_INPUT_PATH", "from-env.csv")

	cfg, err := loadConfig(flags{configFile: path, input: "from-flag.csv", batches: "1,2"})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Store.Backend != config.BackendSQLite {
		t.Errorf("Backend = %q, want file value", cfg.Store.Backend)
	}
	if cfg.Benchmark.Repetitions != 6 {
		t.Errorf("Repetitions = %d, want env value 6", cfg.Benchmark.Repetitions)
	}
	if cfg.Input.Path != "from-flag.csv" {
		t.Errorf("Input.Path = %q, want flag value", cfg.Input.Path)
	}
	if !reflect.DeepEqual(cfg.Benchmark.BatchSizes, []int{1, 2}) {
		t.Errorf("BatchSizes = %v", cfg.Benchmark.BatchSizes)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	if _, err := loadConfig(flags{batches: "10,x"}); err == nil {
		t.Error("expected error for bad -batches")
	}
	if _, err := loadConfig(flags{backend: "cassandra"}); err == nil {
		t.Error("expected validation error for unknown backend")
	}
}

// runConfig returns a small badger-backed run over a one-row input in dir.
func runConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	input := filepath.Join(dir, "xaa")
	data := "ride_id,rideable_type,started_at,ended_at,start_station_name,start_station_id," +
		"end_station_name,end_station_id,start_lat,start_lng,end_lat,end_lng,member_casual\n" +
		"R1,classic_bike,2021-10-01 00:00:00,2021-10-01 00:10:00,A,1,B,2,40.7,-73.9,40.8,-73.8,member\n"
	if err := os.WriteFile(input, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Store.Backend = config.BackendBadger
	cfg.Store.InMemory = true
	cfg.Input.Path = input
	cfg.Benchmark.BatchSizes = []int{1, 10}
	cfg.Benchmark.Repetitions = 2
	cfg.Output.Path = filepath.Join(dir, "simulation_result.json")
	cfg.Output.Publish = config.PublishLocal
	cfg.Output.PublishPath = filepath.Join(dir, "published")
	return cfg
}

func TestRun_WritesAndPublishes(t *testing.T) {
	cfg := runConfig(t, t.TempDir())

	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	raw, err := os.ReadFile(cfg.Output.Path)
	if err != nil {
		t.Fatalf("failed to read result: %v", err)
	}
	var result map[string]map[string]float64
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if len(result) != 2 || result["1"] == nil || result["10"] == nil {
		t.Errorf("result = %v", result)
	}

	published, err := filepath.Glob(filepath.Join(cfg.Output.PublishPath, "tripload", "*", "simulation_result.json"))
	if err != nil || len(published) != 1 {
		t.Errorf("expected one published result, got %v (%v)", published, err)
	}
}

func TestRun_PublishFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := runConfig(t, dir)

	// A regular file where the publish directory should be.
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("failed to write blocker: %v", err)
	}
	cfg.Output.PublishPath = filepath.Join(blocker, "published")

	err := run(context.Background(), cfg)
	if lderrors.GetCode(err) != lderrors.CodePublishFailed {
		t.Errorf("expected PUBLISH_FAILED, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Output.Path); statErr != nil {
		t.Errorf("result file should be written before publishing: %v", statErr)
	}
}
