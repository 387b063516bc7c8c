package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/haul/internal/logging"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/transfer"
)

// Config defines configuration for the haul CLI.
type Config struct {
	Origin          string      `yaml:"origin"`
	Datasets        []string    `yaml:"datasets"`
	LocalDir        string      `yaml:"local_dir"`
	Bucket          string      `yaml:"bucket"`
	Prefix          string      `yaml:"prefix"`
	ChunkSize       int64       `yaml:"chunk_size"`
	Workers         int         `yaml:"workers"`
	Overwrite       bool        `yaml:"overwrite"`
	ContinueOnError bool        `yaml:"continue_on_error"`
	Progress        bool        `yaml:"progress"`
	LogLevel        string      `yaml:"log_level"`
	LogFormat       string      `yaml:"log_format"`
	Region          string      `yaml:"region"`
	Endpoint        string      `yaml:"endpoint"`
	Retry           RetryConfig `yaml:"retry"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults. LocalDir has no default
// and must be set.
func Default() Config {
	return Config{
		Prefix:    "raw",
		ChunkSize: 50 * 1024 * 1024, // 50MiB
		Workers:   10,
		LogLevel:  "INFO",
		LogFormat: "text",
		Retry: RetryConfig{
			Attempts:   3,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// ParseChunkSize parses a chunk size. A bare number is a count of MiB,
// anything else is a byte string such as "256MB" or "1GiB".
func ParseChunkSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("chunk size must be positive: %s", s)
		}
		return n * 1024 * 1024, nil
	}
	return progress.ParseBytes(s)
}

// yamlConfig is used for YAML unmarshaling with string chunk size.
type yamlConfig struct {
	Origin          string          `yaml:"origin"`
	Datasets        []string        `yaml:"datasets"`
	LocalDir        string          `yaml:"local_dir"`
	Bucket          string          `yaml:"bucket"`
	Prefix          *string         `yaml:"prefix"`
	ChunkSize       string          `yaml:"chunk_size"`
	Workers         int             `yaml:"workers"`
	Overwrite       bool            `yaml:"overwrite"`
	ContinueOnError bool            `yaml:"continue_on_error"`
	Progress        bool            `yaml:"progress"`
	LogLevel        string          `yaml:"log_level"`
	LogFormat       string          `yaml:"log_format"`
	Region          string          `yaml:"region"`
	Endpoint        string          `yaml:"endpoint"`
	Retry           yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Origin != "" {
		cfg.Origin = yc.Origin
	}
	if len(yc.Datasets) > 0 {
		cfg.Datasets = yc.Datasets
	}
	if yc.LocalDir != "" {
		cfg.LocalDir = yc.LocalDir
	}
	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.Prefix != nil {
		cfg.Prefix = *yc.Prefix
	}
	if yc.ChunkSize != "" {
		size, err := ParseChunkSize(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	cfg.Overwrite = yc.Overwrite
	cfg.ContinueOnError = yc.ContinueOnError
	cfg.Progress = yc.Progress
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.LogFormat != "" {
		cfg.LogFormat = yc.LogFormat
	}
	cfg.Region = yc.Region
	cfg.Endpoint = yc.Endpoint
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the HAUL_ prefix. DATA_PARENT_URL is accepted
// as the origin when HAUL_ORIGIN is not set.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("DATA_PARENT_URL"); v != "" {
		c.Origin = v
	}
	if v := os.Getenv("HAUL_ORIGIN"); v != "" {
		c.Origin = v
	}
	if v := os.Getenv("HAUL_DATASETS"); v != "" {
		c.Datasets = splitList(v)
	}
	if v := os.Getenv("HAUL_LOCAL_DIR"); v != "" {
		c.LocalDir = v
	}
	if v := os.Getenv("HAUL_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v, ok := os.LookupEnv("HAUL_PREFIX"); ok {
		c.Prefix = v
	}
	if v := os.Getenv("HAUL_CHUNK_SIZE"); v != "" {
		size, err := ParseChunkSize(v)
		if err != nil {
			return fmt.Errorf("parse HAUL_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("HAUL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse HAUL_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("HAUL_OVERWRITE"); v != "" {
		c.Overwrite = v == "true" || v == "1"
	}
	if v := os.Getenv("HAUL_CONTINUE_ON_ERROR"); v != "" {
		c.ContinueOnError = v == "true" || v == "1"
	}
	if v := os.Getenv("HAUL_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("HAUL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HAUL_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("HAUL_REGION"); v != "" {
		c.Region = v
	}
	if v := os.Getenv("HAUL_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("HAUL_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse HAUL_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("HAUL_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse HAUL_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("HAUL_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse HAUL_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return errors.New("config: origin is required")
	}
	if len(c.Datasets) == 0 {
		return errors.New("config: at least one dataset is required")
	}
	for _, d := range c.Datasets {
		if strings.TrimSpace(d) == "" {
			return errors.New("config: dataset names must not be empty")
		}
	}
	if c.Bucket == "" {
		return errors.New("config: bucket is required")
	}
	if c.LocalDir == "" {
		return errors.New("config: local_dir is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry attempts must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if f := strings.ToLower(c.LogFormat); f != "" && f != "text" && f != "json" {
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Origin != "" {
		c.Origin = override.Origin
	}
	if len(override.Datasets) > 0 {
		c.Datasets = override.Datasets
	}
	if override.LocalDir != "" {
		c.LocalDir = override.LocalDir
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.Prefix != "" {
		c.Prefix = override.Prefix
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Overwrite {
		c.Overwrite = override.Overwrite
	}
	if override.ContinueOnError {
		c.ContinueOnError = override.ContinueOnError
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		c.LogFormat = override.LogFormat
	}
	if override.Region != "" {
		c.Region = override.Region
	}
	if override.Endpoint != "" {
		c.Endpoint = override.Endpoint
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}

// Job returns the transfer job described by c. Dataset names are appended
// to the origin verbatim, so the origin normally ends in "/".
func (c Config) Job() transfer.Job {
	return transfer.Job{
		Origin:          c.Origin,
		Files:           append([]string(nil), c.Datasets...),
		ChunkSize:       c.ChunkSize,
		Workers:         c.Workers,
		Bucket:          c.Bucket,
		Prefix:          c.Prefix,
		Overwrite:       c.Overwrite,
		ContinueOnError: c.ContinueOnError,
		WorkDir:         c.LocalDir,
	}
}
