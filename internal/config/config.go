// Package config provides configuration for the tripload benchmark.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the column-family store implementation.
type Backend string

const (
	BackendHBase  Backend = "hbase"
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

// PublishTarget selects where the result file is copied after a run.
type PublishTarget string

const (
	PublishNone  PublishTarget = "none"
	PublishLocal PublishTarget = "local"
	PublishS3    PublishTarget = "s3"
)

// Config holds the full benchmark configuration.
type Config struct {
	// Store configuration
	Store StoreConfig `json:"store" yaml:"store"`

	// Input file configuration
	Input InputConfig `json:"input" yaml:"input"`

	// Benchmark loop configuration
	Benchmark BenchmarkConfig `json:"benchmark" yaml:"benchmark"`

	// Output configuration
	Output OutputConfig `json:"output" yaml:"output"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StoreConfig holds the storage service connection settings.
type StoreConfig struct {
	// Backend is the store type: hbase, sqlite, badger
	Backend Backend `json:"backend" yaml:"backend"`

	// Host is the storage service host (REST gateway host for hbase)
	Host string `json:"host" yaml:"host"`

	// Port is the storage service port (REST gateway port for hbase)
	Port int `json:"port" yaml:"port"`

	// TLS uses https to reach the REST gateway
	TLS bool `json:"tls" yaml:"tls"`

	// Timeout bounds each request to the REST gateway
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Namespace groups tables within the service
	Namespace string `json:"namespace" yaml:"namespace"`

	// Table is the target table name, recreated on every repetition
	Table string `json:"table" yaml:"table"`

	// Families are the attribute groups declared at table creation
	Families []string `json:"families" yaml:"families"`

	// Path is the data directory for the sqlite and badger backends
	Path string `json:"path" yaml:"path"`

	// InMemory keeps the badger backend entirely in memory
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SaltBuckets prefixes row keys with a hash bucket when > 0
	SaltBuckets int `json:"salt_buckets" yaml:"salt_buckets"`

	// PopulateTimeData also writes the trip timestamps into time_data
	PopulateTimeData bool `json:"populate_time_data" yaml:"populate_time_data"`
}

// InputConfig holds source file settings.
type InputConfig struct {
	// Path is the CSV file to load (.sz and .gz are decompressed)
	Path string `json:"path" yaml:"path"`

	// SkipHeader drops the first line of the file
	SkipHeader bool `json:"skip_header" yaml:"skip_header"`
}

// BenchmarkConfig holds the batch-size sweep.
type BenchmarkConfig struct {
	// BatchSizes are the batch capacities to measure, in order
	BatchSizes []int `json:"batch_sizes" yaml:"batch_sizes"`

	// Repetitions is the number of timed loads per batch size
	Repetitions int `json:"repetitions" yaml:"repetitions"`
}

// OutputConfig holds result file settings.
type OutputConfig struct {
	// Path is the JSON result file
	Path string `json:"path" yaml:"path"`

	// Indent is the number of spaces used to indent the JSON result
	Indent int `json:"indent" yaml:"indent"`

	// Publish copies the result file after the run: none, local, s3
	Publish PublishTarget `json:"publish" yaml:"publish"`

	// PublishPath is the base directory for local publishing
	PublishPath string `json:"publish_path" yaml:"publish_path"`

	// S3 configuration (for s3 publishing)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 publishing configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	// Prefix is prepended to published object keys
	Prefix string `json:"prefix" yaml:"prefix"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// PushgatewayURL receives the run metrics when set
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`

	// Job is the pushgateway job name
	Job string `json:"job" yaml:"job"`
}

// DefaultBatchSizes is the batch-size sweep used when none is configured.
var DefaultBatchSizes = []int{100, 1000, 2000, 5000, 10000, 50000, 100000, 200000}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   BackendHBase,
			Host:      "127.0.0.1",
			Port:      8080,
			Timeout:   30 * time.Second,
			Namespace: "sample_data",
			Table:     "tripdata",
			Families:  []string{"ride_data", "time_data", "geo_data"},
			Path:      "./data/tripload",
		},
		Input: InputConfig{
			Path:       "xaa",
			SkipHeader: true,
		},
		Benchmark: BenchmarkConfig{
			BatchSizes:  append([]int(nil), DefaultBatchSizes...),
			Repetitions: 20,
		},
		Output: OutputConfig{
			Path:        "simulation_result.json",
			Indent:      6,
			Publish:     PublishNone,
			PublishPath: "./data/results",
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "tripload",
			},
		},
		Metrics: MetricsConfig{
			Job: "tripload",
		},
	}
}

// QualifiedTable returns the table name prefixed by its namespace.
func (c *Config) QualifiedTable() string {
	if c.Store.Namespace == "" {
		return c.Store.Table
	}
	return c.Store.Namespace + ":" + c.Store.Table
}

// GatewayURL returns the base URL of the HBase REST gateway.
func (s StoreConfig) GatewayURL() string {
	scheme := "http"
	if s.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port)
}

// UnmarshalJSON accepts store.timeout either as a duration string ("30s")
// or as integer nanoseconds, matching what YAML files allow.
func (s *StoreConfig) UnmarshalJSON(data []byte) error {
	type plain StoreConfig
	aux := struct {
		*plain
		Timeout json.RawMessage `json:"timeout"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Timeout) == 0 || string(aux.Timeout) == "null" {
		return nil
	}

	var str string
	if err := json.Unmarshal(aux.Timeout, &str); err == nil {
		d, err := time.ParseDuration(str)
		if err != nil {
			return fmt.Errorf("invalid store.timeout %q: %w", str, err)
		}
		s.Timeout = d
		return nil
	}
	var ns int64
	if err := json.Unmarshal(aux.Timeout, &ns); err != nil {
		return fmt.Errorf("invalid store.timeout %s: must be a duration string or nanoseconds", aux.Timeout)
	}
	s.Timeout = time.Duration(ns)
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendHBase, BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("invalid store backend: %s (must be hbase, sqlite, or badger)", c.Store.Backend)
	}

	if c.Store.Table == "" {
		return fmt.Errorf("store.table is required")
	}
	if len(c.Store.Families) == 0 {
		return fmt.Errorf("store.families must not be empty")
	}
	if c.Store.Backend == BackendHBase && c.Store.Host == "" {
		return fmt.Errorf("store.host is required for the hbase backend")
	}
	if c.Store.Backend != BackendHBase && !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
	}
	if c.Store.PopulateTimeData && !slices.Contains(c.Store.Families, "time_data") {
		return fmt.Errorf("store.families must include time_data when populate_time_data is set")
	}
	if c.Store.SaltBuckets < 0 || c.Store.SaltBuckets > 256 {
		return fmt.Errorf("store.salt_buckets must be between 0 and 256, got %d", c.Store.SaltBuckets)
	}

	if c.Input.Path == "" {
		return fmt.Errorf("input.path is required")
	}

	if len(c.Benchmark.BatchSizes) == 0 {
		return fmt.Errorf("benchmark.batch_sizes must not be empty")
	}
	seen := make(map[int]bool, len(c.Benchmark.BatchSizes))
	for _, b := range c.Benchmark.BatchSizes {
		if b <= 0 {
			return fmt.Errorf("benchmark.batch_sizes must be positive, got %d", b)
		}
		if seen[b] {
			return fmt.Errorf("benchmark.batch_sizes contains duplicate %d", b)
		}
		seen[b] = true
	}
	if c.Benchmark.Repetitions <= 0 {
		return fmt.Errorf("benchmark.repetitions must be positive, got %d", c.Benchmark.Repetitions)
	}

	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if c.Output.Indent < 0 {
		return fmt.Errorf("output.indent must not be negative")
	}
	switch c.Output.Publish {
	case "", PublishNone, PublishLocal, PublishS3:
	default:
		return fmt.Errorf("invalid output.publish: %s (must be none, local, or s3)", c.Output.Publish)
	}
	if c.Output.Publish == PublishS3 && c.Output.S3.Bucket == "" {
		return fmt.Errorf("output.s3.bucket is required when publish is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TRIPLOAD_ prefix.
func LoadFromEnv(cfg *Config) {
	// Store configuration
	if v := os.Getenv("TRIPLOAD_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = Backend(v)
	}
	if v := os.Getenv("TRIPLOAD_STORE_HOST"); v != "" {
		cfg.Store.Host = v
	}
	if v := os.Getenv("TRIPLOAD_STORE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Store.Port)
	}
	if v := os.Getenv("TRIPLOAD_STORE_NAMESPACE"); v != "" {
		cfg.Store.Namespace = v
	}
	if v := os.Getenv("TRIPLOAD_STORE_TABLE"); v != "" {
		cfg.Store.Table = v
	}
	if v := os.Getenv("TRIPLOAD_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TRIPLOAD_STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.Timeout = d
		}
	}
	if v := os.Getenv("TRIPLOAD_STORE_SALT_BUCKETS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Store.SaltBuckets)
	}

	// Input and benchmark configuration
	if v := os.Getenv("TRIPLOAD_INPUT_PATH"); v != "" {
		cfg.Input.Path = v
	}
	if v := os.Getenv("TRIPLOAD_BATCH_SIZES"); v != "" {
		sizes, err := ParseBatchSizes(v)
		if err != nil {
			log.Printf("WARN: ignoring TRIPLOAD_BATCH_SIZES=%q: %v", v, err)
		} else {
			cfg.Benchmark.BatchSizes = sizes
		}
	}
	if v := os.Getenv("TRIPLOAD_REPETITIONS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			log.Printf("WARN: ignoring TRIPLOAD_REPETITIONS=%q: %v", v, err)
		} else {
			cfg.Benchmark.Repetitions = n
		}
	}

	// Output configuration
	if v := os.Getenv("TRIPLOAD_OUTPUT_PATH"); v != "" {
		cfg.Output.Path = v
	}
	if v := os.Getenv("TRIPLOAD_PUBLISH"); v != "" {
		cfg.Output.Publish = PublishTarget(v)
	}
	if v := os.Getenv("TRIPLOAD_S3_BUCKET"); v != "" {
		cfg.Output.S3.Bucket = v
	}
	if v := os.Getenv("TRIPLOAD_S3_REGION"); v != "" {
		cfg.Output.S3.Region = v
	}
	if v := os.Getenv("TRIPLOAD_S3_ENDPOINT"); v != "" {
		cfg.Output.S3.Endpoint = v
	}

	// Metrics configuration
	if v := os.Getenv("TRIPLOAD_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}

// ParseBatchSizes parses a comma-separated list of batch sizes.
func ParseBatchSizes(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid batch size %q: %w", p, err)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no batch sizes in %q", s)
	}
	return sizes, nil
}
