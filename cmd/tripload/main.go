// Package main implements the tripload binary.
// It loads a bike-trip CSV file into a column-family store once per
// repetition for each batch size and writes the timing statistics to JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/arkilian/tripload/internal/bench"
	"github.com/arkilian/tripload/internal/config"
	lderrors "github.com/arkilian/tripload/internal/errors"
	"github.com/arkilian/tripload/internal/observability"
	"github.com/arkilian/tripload/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

// flags holds command line overrides. Zero values leave the configuration untouched.
type flags struct {
	configFile  string
	input       string
	output      string
	backend     string
	host        string
	port        int
	batches     string
	repetitions int
}

func main() {
	var (
		f           flags
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.input, "input", "", "CSV file to load (.sz and .gz are decompressed)")
	flag.StringVar(&f.output, "output", "", "Result JSON file")
	flag.StringVar(&f.backend, "backend", "", "Store backend: hbase, sqlite, badger")
	flag.StringVar(&f.host, "host", "", "Store host (REST gateway host for hbase)")
	flag.IntVar(&f.port, "port", 0, "Store port (REST gateway port for hbase)")
	flag.StringVar(&f.batches, "batches", "", "Comma-separated batch sizes")
	flag.IntVar(&f.repetitions, "repetitions", 0, "Repetitions per batch size")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tripload - batch-size load benchmark for column-family stores\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tripload [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tripload --input xaa --host 127.0.0.1 --port 8080\n")
		fmt.Fprintf(os.Stderr, "  tripload --backend sqlite --batches 100,1000 --repetitions 3\n")
		fmt.Fprintf(os.Stderr, "  tripload --config /etc/tripload/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		fmt.Fprintf(os.Stderr, "  TRIPLOAD_STORE_BACKEND  Store backend (hbase, sqlite, badger)\n")
		fmt.Fprintf(os.Stderr, "  TRIPLOAD_STORE_HOST     Store host\n")
		fmt.Fprintf(os.Stderr, "  TRIPLOAD_INPUT_PATH     Input file\n")
		fmt.Fprintf(os.Stderr, "  TRIPLOAD_BATCH_SIZES    Comma-separated batch sizes\n")
		fmt.Fprintf(os.Stderr, "  TRIPLOAD_REPETITIONS    Repetitions per batch size\n")
		fmt.Fprintf(os.Stderr, "  TRIPLOAD_PUBLISH        Result publishing (none, local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("tripload version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("WARN: couldn't read .env: %v", err)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		stop()
		log.Fatalf("Benchmark failed: %v", err)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if f.input != "" {
		cfg.Input.Path = f.input
	}
	if f.output != "" {
		cfg.Output.Path = f.output
	}
	if f.backend != "" {
		cfg.Store.Backend = config.Backend(f.backend)
	}
	if f.host != "" {
		cfg.Store.Host = f.host
	}
	if f.port != 0 {
		cfg.Store.Port = f.port
	}
	if f.batches != "" {
		sizes, err := config.ParseBatchSizes(f.batches)
		if err != nil {
			return nil, fmt.Errorf("invalid -batches: %w", err)
		}
		cfg.Benchmark.BatchSizes = sizes
	}
	if f.repetitions != 0 {
		cfg.Benchmark.Repetitions = f.repetitions
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run executes the benchmark, writes the result file and publishes it.
func run(ctx context.Context, cfg *config.Config) error {
	metrics := observability.NewRunMetrics()
	runner := bench.NewRunner(cfg, bench.WithMetrics(metrics))

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if err := bench.WriteResult(cfg.Output.Path, result, cfg.Output.Indent); err != nil {
		return err
	}
	log.Printf("Results written to %s", cfg.Output.Path)

	objects, err := storage.New(ctx, cfg.Output)
	if err != nil {
		return lderrors.NewOutputError(lderrors.CodePublishFailed, "initialize result storage", err)
	}
	if objects != nil {
		if _, err := storage.Publish(ctx, objects, cfg.Output.Path, cfg.Output.S3.Prefix, runner.RunID()); err != nil {
			return lderrors.NewOutputError(lderrors.CodePublishFailed, "publish "+cfg.Output.Path, err)
		}
	}

	if cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, runner.RunID()); err != nil {
			log.Printf("WARN: %v", err)
		}
	}
	return nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("tripload %s (commit: %s)", version, commit)
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Backend:     %s", cfg.Store.Backend)
	if cfg.Store.Backend == config.BackendHBase {
		log.Printf("  Gateway:     %s", cfg.Store.GatewayURL())
	} else {
		log.Printf("  Data Dir:    %s", cfg.Store.Path)
	}
	log.Printf("  Table:       %s", cfg.QualifiedTable())
	log.Printf("  Input:       %s", cfg.Input.Path)
	log.Printf("  Batch Sizes: %v", cfg.Benchmark.BatchSizes)
	log.Printf("  Repetitions: %d", cfg.Benchmark.Repetitions)
	log.Printf("  Output:      %s", cfg.Output.Path)
	if cfg.Output.Publish != config.PublishNone {
		log.Printf("  Publish:     %s", cfg.Output.Publish)
	}
	log.Printf("")
}
