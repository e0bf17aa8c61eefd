// Package config loads the server configuration.
//
// Settings come from a YAML file ($AUDIT_CONFIG or
// ~/.audience-audit/config.yaml) layered over built-in defaults, then
// from environment variables. A missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Retry    RetryConfig    `yaml:"retry"`
	Batch    BatchConfig    `yaml:"batch"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	// StepsFile optionally points at a YAML file of step prompt overrides.
	StepsFile string `yaml:"steps_file"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory | sqlite | postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type ProviderConfig struct {
	Name      string        `yaml:"name"` // openai | echo
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type ArchiveConfig struct {
	Driver string   `yaml:"driver"` // none | fs | s3 | memory
	Dir    string   `yaml:"dir"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DataDir is where local state lives by default.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".audience-audit"
	}
	return filepath.Join(home, ".audience-audit")
}

// Default returns the built-in configuration.
func Default() Config {
	dir := DataDir()
	return Config{
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(dir, "audit.db"),
		},
		Provider: ProviderConfig{
			Name:      "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 4000,
			Timeout:   2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseDelay:      time.Second,
			MaxDelay:       30 * time.Second,
			AttemptTimeout: 3 * time.Minute,
		},
		Batch:   BatchConfig{Concurrency: 3},
		Archive: ArchiveConfig{Driver: "none", Dir: filepath.Join(dir, "archive")},
		Log:     LogConfig{Level: "info", Format: "text"},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Path resolves the config file location.
func Path(getenv func(string) string) string {
	if p := getenv("AUDIT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "config.yaml")
}

// Load reads the config file, applies environment overrides from the
// process environment and validates the result.
func Load() (Config, error) {
	return LoadFrom(Path(os.Getenv), os.Getenv)
}

// LoadFrom is Load with an explicit file path and environment.
func LoadFrom(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Storage.Driver, "AUDIT_STORAGE_DRIVER")
	set(&c.Storage.SQLitePath, "AUDIT_SQLITE_PATH")
	set(&c.Storage.PostgresDSN, "AUDIT_POSTGRES_DSN")
	set(&c.Provider.Name, "AUDIT_PROVIDER")
	set(&c.Provider.Model, "AUDIT_MODEL")
	set(&c.Provider.APIKey, "OPENAI_API_KEY")
	set(&c.Provider.BaseURL, "OPENAI_BASE_URL")
	set(&c.Archive.Driver, "AUDIT_ARCHIVE_DRIVER")
	set(&c.Archive.Dir, "AUDIT_ARCHIVE_DIR")
	set(&c.Archive.S3.Bucket, "AUDIT_ARCHIVE_S3_BUCKET")
	set(&c.Archive.S3.Region, "AUDIT_ARCHIVE_S3_REGION")
	set(&c.Archive.S3.Endpoint, "AUDIT_ARCHIVE_S3_ENDPOINT")
	set(&c.Log.Level, "AUDIT_LOG_LEVEL")
	set(&c.Log.Format, "AUDIT_LOG_FORMAT")
	set(&c.HTTP.Addr, "AUDIT_HTTP_ADDR")
	set(&c.StepsFile, "AUDIT_STEPS_FILE")

	if v := getenv("AUDIT_ARCHIVE_S3_PATH_STYLE"); v != "" {
		c.Archive.S3.PathStyle = strings.EqualFold(v, "true")
	}
	if v := getenv("AUDIT_BATCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUDIT_BATCH_CONCURRENCY: %w", err)
		}
		c.Batch.Concurrency = n
	}
	if v := getenv("AUDIT_METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUDIT_METRICS: %w", err)
		}
		c.Metrics.Enabled = b
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q: must be one of: memory, sqlite, postgres", c.Storage.Driver)
	}

	switch c.Provider.Name {
	case "openai":
		if c.Provider.Model == "" {
			return errors.New("provider.model is required")
		}
	case "echo":
	default:
		return fmt.Errorf("invalid provider.name %q: must be openai or echo", c.Provider.Name)
	}
	if c.Provider.MaxTokens < 0 {
		return errors.New("provider.max_tokens must not be negative")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.MaxDelay > 0 && c.Retry.BaseDelay > c.Retry.MaxDelay {
		return errors.New("retry.base_delay must not exceed retry.max_delay")
	}
	if c.Batch.Concurrency < 1 {
		return errors.New("batch.concurrency must be at least 1")
	}

	switch c.Archive.Driver {
	case "", "none", "memory":
	case "fs":
		if c.Archive.Dir == "" {
			return errors.New("archive.dir is required for the fs driver")
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return errors.New("archive.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("invalid archive.driver %q: must be one of: none, fs, s3, memory", c.Archive.Driver)
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}
