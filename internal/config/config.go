// Package config loads the server configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level configuration file.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Corpus     CorpusConfig     `yaml:"corpus"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ExperimentConfig holds the defaults for experiments started over the API.
type ExperimentConfig struct {
	Algorithms  string `yaml:"algorithms"`
	Simulations int    `yaml:"simulations"`
	MinPow      int    `yaml:"min_pow"`
	MaxPow      int    `yaml:"max_pow"`
	Workers     int    `yaml:"workers"`
	Hash        string `yaml:"hash"`
}

// StorageConfig selects and configures the run store.
type StorageConfig struct {
	// Backend is one of memory, sqlite, clickhouse, archive
	Backend string `yaml:"backend"`

	// Mirror optionally names a second backend receiving a copy of every write
	Mirror string `yaml:"mirror"`

	SQLitePath     string `yaml:"sqlite_path"`
	ClickHouseAddr string `yaml:"clickhouse_addr"`
	ArchiveDir     string `yaml:"archive_dir"`
	MaxRuns        int    `yaml:"max_runs"`
}

// ServerConfig configures the REST API.
type ServerConfig struct {
	APIAddr string `yaml:"api_addr"`
}

// ReceiverConfig configures OTLP ingestion. Empty addresses disable a receiver.
type ReceiverConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	// AttributeKey picks the element from each log record or span. When empty
	// the log body or span name is used.
	AttributeKey string `yaml:"attribute_key"`

	// CorpusPrefix is prepended to the service name to form the corpus name
	CorpusPrefix string `yaml:"corpus_prefix"`
}

// CorpusConfig bounds in-memory corpora.
type CorpusConfig struct {
	MaxElements int `yaml:"max_elements"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Experiment: ExperimentConfig{
			Algorithms:  "all",
			Simulations: 100,
			MinPow:      4,
			MaxPow:      9,
			Hash:        "murmur3",
		},
		Storage: StorageConfig{
			Backend:        "memory",
			SQLitePath:     "data/runs.db",
			ClickHouseAddr: "localhost:9000",
			ArchiveDir:     "data/runs",
			MaxRuns:        1000,
		},
		Server: ServerConfig{APIAddr: "0.0.0.0:8080"},
		Receiver: ReceiverConfig{
			HTTPAddr:     "0.0.0.0:4318",
			GRPCAddr:     "0.0.0.0:4317",
			CorpusPrefix: "otlp-",
		},
		Corpus: CorpusConfig{MaxElements: 1_000_000},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields the defaults plus the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Experiment.Simulations = getEnvInt("EXPERIMENT_SIMULATIONS", c.Experiment.Simulations)
	c.Experiment.Workers = getEnvInt("EXPERIMENT_WORKERS", c.Experiment.Workers)
	c.Experiment.Hash = getEnv("EXPERIMENT_HASH", c.Experiment.Hash)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Mirror = getEnv("STORAGE_MIRROR", c.Storage.Mirror)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.ClickHouseAddr = getEnv("CLICKHOUSE_ADDR", c.Storage.ClickHouseAddr)
	c.Storage.ArchiveDir = getEnv("ARCHIVE_DIR", c.Storage.ArchiveDir)

	c.Server.APIAddr = getEnv("API_ADDR", c.Server.APIAddr)

	c.Receiver.HTTPAddr = getEnv("OTLP_HTTP_ADDR", c.Receiver.HTTPAddr)
	c.Receiver.GRPCAddr = getEnv("OTLP_GRPC_ADDR", c.Receiver.GRPCAddr)
	c.Receiver.AttributeKey = getEnv("OTLP_ATTRIBUTE_KEY", c.Receiver.AttributeKey)
	if !getEnvBool("OTLP_ENABLED", true) {
		c.Receiver.HTTPAddr = ""
		c.Receiver.GRPCAddr = ""
	}

	c.Corpus.MaxElements = getEnvInt("CORPUS_MAX_ELEMENTS", c.Corpus.MaxElements)
}

// Validate checks the values that cannot be caught later with a clear message.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q (supported: text, json)", ErrInvalidConfig, c.Log.Format)
	}

	if c.Experiment.Simulations < 1 {
		return fmt.Errorf("%w: experiment simulations must be at least 1, got %d", ErrInvalidConfig, c.Experiment.Simulations)
	}
	if c.Experiment.Workers < 0 {
		return fmt.Errorf("%w: experiment workers must not be negative", ErrInvalidConfig)
	}

	if !validBackend(c.Storage.Backend) {
		return fmt.Errorf("%w: storage backend %q (supported: memory, sqlite, clickhouse, archive)", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Storage.Mirror != "" {
		if !validBackend(c.Storage.Mirror) {
			return fmt.Errorf("%w: storage mirror %q", ErrInvalidConfig, c.Storage.Mirror)
		}
		if c.Storage.Mirror == c.Storage.Backend {
			return fmt.Errorf("%w: storage mirror must differ from backend", ErrInvalidConfig)
		}
	}

	if c.Server.APIAddr == "" {
		return fmt.Errorf("%w: server api_addr is required", ErrInvalidConfig)
	}
	if c.Corpus.MaxElements < 0 {
		return fmt.Errorf("%w: corpus max_elements must not be negative", ErrInvalidConfig)
	}
	return nil
}

func validBackend(name string) bool {
	switch name {
	case "memory", "sqlite", "clickhouse", "archive":
		return true
	}
	return false
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidConfig, level)
	}
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger() *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
