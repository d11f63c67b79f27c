package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "emxloader.db", cfg.Storage.SQLitePath)
	assert.Equal(t, ArchiveFS, cfg.Archive.Driver)
	assert.Equal(t, 100000, cfg.HugeSet.SpillThreshold)
	assert.Equal(t, "emx", cfg.MetricsNamespace)
	assert.Equal(t, MetricsPrometheus, cfg.MetricsExporter)
	assert.True(t, cfg.PrometheusEnabled())
	assert.False(t, cfg.ExpvarEnabled())
	lvl, err := cfg.LogrusLevel()
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, lvl)
}

func TestLoadReadsPrefixedVariables(t *testing.T) {
	t.Setenv("EMX_STORAGE_DRIVER", "Postgres")
	t.Setenv("EMX_STORAGE_POSTGRES_DSN", "postgres://db/emx")
	t.Setenv("EMX_ARCHIVE_DRIVER", "s3")
	t.Setenv("EMX_ARCHIVE_S3_BUCKET", "imports")
	t.Setenv("EMX_ARCHIVE_S3_PATH_STYLE", "true")
	t.Setenv("EMX_HUGESET_SPILL_THRESHOLD", "10")
	t.Setenv("EMX_LOG_LEVEL", "debug")
	t.Setenv("EMX_LOG_FORMAT", "json")
	t.Setenv("EMX_METRICS_EXPORTER", " Both ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://db/emx", cfg.Storage.PostgresDSN)
	assert.Equal(t, "imports", cfg.Archive.S3.Bucket)
	assert.True(t, cfg.Archive.S3.PathStyle)
	assert.Equal(t, "us-east-1", cfg.Archive.S3.Region)
	assert.Equal(t, 10, cfg.HugeSet.SpillThreshold)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, MetricsBoth, cfg.MetricsExporter)
	assert.True(t, cfg.PrometheusEnabled())
	assert.True(t, cfg.ExpvarEnabled())
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("EMX_STORAGE_DRIVER=memory\n"), 0o600))
	t.Setenv("EMX_STORAGE_DRIVER", "")
	require.NoError(t, os.Unsetenv("EMX_STORAGE_DRIVER"))

	n, err := LoadEnv([]string{path, filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	base := func() Config {
		return Config{
			Storage:         StorageOptions{Driver: StorageMemory},
			Archive:         ArchiveOptions{Driver: ArchiveNone},
			HugeSet:         HugeSetOptions{SpillThreshold: 1},
			LogLevel:        "info",
			LogFormat:       "text",
			MetricsExporter: MetricsExpvar,
		}
	}
	ok := base()
	require.NoError(t, ok.Validate())

	cases := map[string]func(*Config){
		"storage":   func(c *Config) { c.Storage.Driver = "mysql" },
		"archive":   func(c *Config) { c.Archive.Driver = "ftp" },
		"s3 bucket": func(c *Config) { c.Archive.Driver = ArchiveS3 },
		"threshold": func(c *Config) { c.HugeSet.SpillThreshold = 0 },
		"level":     func(c *Config) { c.LogLevel = "loud" },
		"format":    func(c *Config) { c.LogFormat = "xml" },
		"exporter":  func(c *Config) { c.MetricsExporter = "statsd" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSilentLevel(t *testing.T) {
	c := Config{LogLevel: "silent"}
	lvl, err := c.LogrusLevel()
	require.NoError(t, err)
	assert.Equal(t, logrus.PanicLevel, lvl)
}
