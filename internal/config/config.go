// Package config loads crosslab settings from CROSSLAB_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Storage drivers accepted by StorageDriver.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Blob drivers accepted by BlobDriver.
const (
	BlobFilesystem = "fs"
	BlobMemory     = "memory"
	BlobS3         = "s3"
)

// Metrics exporters accepted by Metrics.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// Config is the full process configuration.
type Config struct {
	StorageDriver string `env:"CROSSLAB_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"CROSSLAB_SQLITE_PATH" envDefault:"crosslab.db"`
	PostgresDSN   string `env:"CROSSLAB_POSTGRES_DSN"`

	BlobDriver      string `env:"CROSSLAB_BLOB_DRIVER" envDefault:"fs"`
	BlobFSRoot      string `env:"CROSSLAB_BLOB_FS_ROOT" envDefault:"./exports"`
	BlobS3Bucket    string `env:"CROSSLAB_BLOB_S3_BUCKET"`
	BlobS3Region    string `env:"CROSSLAB_BLOB_S3_REGION" envDefault:"us-east-1"`
	BlobS3Endpoint  string `env:"CROSSLAB_BLOB_S3_ENDPOINT"`
	BlobS3PathStyle bool   `env:"CROSSLAB_BLOB_S3_PATH_STYLE"`

	Alpha        float64 `env:"CROSSLAB_ALPHA" envDefault:"0.05"`
	MaxGenePairs int     `env:"CROSSLAB_MAX_GENE_PAIRS" envDefault:"6"`

	LogLevel    string `env:"CROSSLAB_LOG_LEVEL" envDefault:"info"`
	Metrics     string `env:"CROSSLAB_METRICS" envDefault:"none"`
	MetricsFile string `env:"CROSSLAB_METRICS_FILE"`
	TraceFile   string `env:"CROSSLAB_TRACE_FILE"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks enumerated values and numeric ranges.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}
	switch c.BlobDriver {
	case BlobFilesystem, BlobMemory:
	case BlobS3:
		if c.BlobS3Bucket == "" {
			errs = append(errs, errors.New("CROSSLAB_BLOB_S3_BUCKET is required for the s3 blob driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.BlobDriver))
	}
	switch c.Metrics {
	case MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q", c.Metrics))
	}
	if c.MetricsFile != "" && c.Metrics == MetricsNone {
		errs = append(errs, errors.New("CROSSLAB_METRICS_FILE needs CROSSLAB_METRICS set to expvar or prometheus"))
	}
	if !(c.Alpha > 0 && c.Alpha < 1) {
		errs = append(errs, fmt.Errorf("alpha %v must be between 0 and 1", c.Alpha))
	}
	if c.MaxGenePairs < 0 {
		errs = append(errs, fmt.Errorf("max gene pairs %d must not be negative", c.MaxGenePairs))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	lvl, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLogLevel maps debug|info|warn|error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
