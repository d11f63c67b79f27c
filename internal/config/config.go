// Package config loads runtime configuration from the environment and
// optional .env files.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Archive drivers.
const (
	ArchiveNone   = "none"
	ArchiveFS     = "fs"
	ArchiveMemory = "memory"
	ArchiveS3     = "s3"
)

// Metrics exporters.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
	MetricsBoth       = "both"
)

// DefaultEnvFiles are read, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

// StorageOptions selects and addresses the data store.
type StorageOptions struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"emxloader.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
}

// S3Options addresses the S3 import archive.
type S3Options struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT"`
	PathStyle bool   `env:"PATH_STYLE" envDefault:"false"`
}

// ArchiveOptions selects where import records are written.
type ArchiveOptions struct {
	Driver string    `env:"DRIVER" envDefault:"fs"`
	FSRoot string    `env:"FS_ROOT" envDefault:"./imports-archive"`
	S3     S3Options `envPrefix:"S3_"`
}

// HugeSetOptions tunes the spillable id sets used by the merge engine.
type HugeSetOptions struct {
	SpillThreshold int    `env:"SPILL_THRESHOLD" envDefault:"100000"`
	TempDir        string `env:"TEMP_DIR"`
}

// Config is the full runtime configuration. Every variable carries the EMX_ prefix.
type Config struct {
	Storage          StorageOptions `envPrefix:"STORAGE_"`
	Archive          ArchiveOptions `envPrefix:"ARCHIVE_"`
	HugeSet          HugeSetOptions `envPrefix:"HUGESET_"`
	LogLevel         string         `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string         `env:"LOG_FORMAT" envDefault:"text"`
	MetricsNamespace string         `env:"METRICS_NAMESPACE" envDefault:"emx"`
	MetricsExporter  string         `env:"METRICS_EXPORTER" envDefault:"prometheus"`
	PolicyFile       string         `env:"POLICY_FILE"`
}

// LoadEnv loads the env files that exist and reports how many were read.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads envFiles (skipping missing ones), parses EMX_* variables and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	c := &Config{}
	if err := env.ParseWithOptions(c, env.Options{Prefix: "EMX_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Archive.Driver = strings.ToLower(strings.TrimSpace(c.Archive.Driver))
	c.MetricsExporter = strings.ToLower(strings.TrimSpace(c.MetricsExporter))
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects unknown drivers and unusable settings.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Archive.Driver {
	case ArchiveNone, ArchiveFS, ArchiveMemory:
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive driver s3 requires EMX_ARCHIVE_S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.Archive.Driver)
	}
	switch c.MetricsExporter {
	case MetricsPrometheus, MetricsExpvar, MetricsBoth:
	default:
		return fmt.Errorf("unknown metrics exporter %q", c.MetricsExporter)
	}
	if c.HugeSet.SpillThreshold <= 0 {
		return fmt.Errorf("hugeset spill threshold must be positive, got %d", c.HugeSet.SpillThreshold)
	}
	if _, err := c.LogrusLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// PrometheusEnabled reports whether the prometheus exporter is selected.
func (c *Config) PrometheusEnabled() bool {
	return c.MetricsExporter == MetricsPrometheus || c.MetricsExporter == MetricsBoth
}

// ExpvarEnabled reports whether the expvar exporter is selected.
func (c *Config) ExpvarEnabled() bool {
	return c.MetricsExporter == MetricsExpvar || c.MetricsExporter == MetricsBoth
}

// LogrusLevel maps LogLevel onto a logrus level. "silent" only lets panics through.
func (c *Config) LogrusLevel() (logrus.Level, error) {
	if strings.EqualFold(c.LogLevel, "silent") {
		return logrus.PanicLevel, nil
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}
