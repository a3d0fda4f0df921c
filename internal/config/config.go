package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/s3pipe/s3pipe/pkg/retry"
	"github.com/s3pipe/s3pipe/pkg/s3"
	"github.com/s3pipe/s3pipe/pkg/utils"
)

// Configuration is the complete application configuration consumed by
// the transfer drivers.
type Configuration struct {
	Global   GlobalConfig   `yaml:"global"`
	S3       s3.Config      `yaml:"s3"`
	Transfer TransferConfig `yaml:"transfer"`
	Retry    retry.Config   `yaml:"retry"`
}

// GlobalConfig holds process-wide settings.
type GlobalConfig struct {
	Logging     utils.LogConfig `yaml:"logging"`
	MetricsPort int             `yaml:"metrics_port"`
}

// TransferConfig tunes how the drivers move data.
type TransferConfig struct {
	// Bucket is the default bucket operated on.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every key the drivers touch.
	Prefix string `yaml:"prefix"`

	// PoolSize is the number of pooled connections.
	PoolSize int `yaml:"pool_size"`

	// Concurrency is the number of requests kept in flight.
	Concurrency int `yaml:"concurrency"`

	// PartSize is the multipart part size, e.g. "8MB".
	PartSize string `yaml:"part_size"`

	// MaxKeysPerBatch bounds each listing page.
	MaxKeysPerBatch int `yaml:"max_keys_per_batch"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			Logging:     utils.LogConfig{Level: "INFO", Format: "text"},
			MetricsPort: 9090,
		},
		S3: *s3.NewDefaultConfig(),
		Transfer: TransferConfig{
			PoolSize:        8,
			Concurrency:     8,
			PartSize:        "8MB",
			MaxKeysPerBatch: 1000,
		},
		Retry: retry.DefaultConfig(),
	}
}

// LoadFromFile overlays configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv overlays configuration from environment variables. The
// AWS_* names match what the transfer drivers have always read; the
// S3PIPE_* names cover the rest.
func (c *Configuration) LoadFromEnv() {
	if val := os.Getenv("AWS_ACCESS_KEY"); val != "" {
		c.S3.AccKey = val
	}
	if val := os.Getenv("AWS_SECRET_KEY"); val != "" {
		c.S3.SecKey = val
	}
	if val := os.Getenv("AWS_HOST"); val != "" {
		c.S3.Host = val
	}
	if val := os.Getenv("AWS_PROXY"); val != "" {
		c.S3.Proxy = val
	}
	if val := os.Getenv("AWS_BUCKET_NAME"); val != "" {
		c.Transfer.Bucket = val
	}

	if val := os.Getenv("S3PIPE_LOG_LEVEL"); val != "" {
		c.Global.Logging.Level = val
	}
	if val := os.Getenv("S3PIPE_LOG_FILE"); val != "" {
		c.Global.Logging.File = val
	}
	if val := os.Getenv("S3PIPE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}
	if val := os.Getenv("S3PIPE_POOL_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Transfer.PoolSize = n
		}
	}
	if val := os.Getenv("S3PIPE_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Transfer.Concurrency = n
		}
	}
	if val := os.Getenv("S3PIPE_PART_SIZE"); val != "" {
		c.Transfer.PartSize = val
	}
	if val := os.Getenv("S3PIPE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.S3.Timeout = d
		}
	}
	if val := os.Getenv("S3PIPE_WALRUS"); val != "" {
		c.S3.IsWalrus = strings.EqualFold(val, "true")
	}
}

// SaveToFile writes the configuration as YAML.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// PartSizeBytes parses the configured part size.
func (c *Configuration) PartSizeBytes() (int64, error) {
	n, err := utils.ParseBytes(c.Transfer.PartSize)
	if err != nil {
		return 0, fmt.Errorf("invalid part_size: %w", err)
	}
	return n, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Configuration) Validate() error {
	if err := c.S3.Validate(); err != nil {
		return err
	}
	if c.Transfer.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be greater than 0")
	}
	if c.Transfer.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than 0")
	}
	if c.Transfer.Concurrency > s3.MaxWait {
		return fmt.Errorf("concurrency must not exceed %d", s3.MaxWait)
	}
	if c.Transfer.Concurrency > c.Transfer.PoolSize {
		return fmt.Errorf("concurrency must not exceed pool_size")
	}
	if c.Transfer.MaxKeysPerBatch <= 0 {
		return fmt.Errorf("max_keys_per_batch must be greater than 0")
	}
	if _, err := utils.ParseLevel(c.Global.Logging.Level); err != nil {
		return err
	}
	if n, err := c.PartSizeBytes(); err != nil {
		return err
	} else if n < s3.MinPartSize {
		return fmt.Errorf("part_size must be at least %s", utils.FormatBytes(s3.MinPartSize))
	}
	return nil
}
