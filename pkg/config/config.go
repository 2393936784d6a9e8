// Package config loads process-wide stream defaults from a YAML file and
// GOSTREAM_* environment variables and applies them to component configs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/gostream/pkg/common/validation"
	"github.com/vnykmshr/gostream/pkg/logging"
	"github.com/vnykmshr/gostream/pkg/metrics"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/bridge"
	"github.com/vnykmshr/gostream/pkg/streaming/bridge/redisbridge"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GOSTREAM"

// Config holds process-wide defaults.
type Config struct {
	// Streams
	HighWaterMark       int    `envconfig:"HIGH_WATER_MARK" yaml:"high_water_mark"`
	ObjectHighWaterMark int    `envconfig:"OBJECT_HIGH_WATER_MARK" yaml:"object_high_water_mark"`
	Encoding            string `envconfig:"ENCODING" yaml:"encoding"`
	AutoDestroy         bool   `envconfig:"AUTO_DESTROY" yaml:"auto_destroy"`
	EmitClose           bool   `envconfig:"EMIT_CLOSE" yaml:"emit_close"`

	// Event loop
	LoopName  string `envconfig:"LOOP_NAME" yaml:"loop_name"`
	Workers   int    `envconfig:"WORKERS" yaml:"workers"`
	QueueSize int    `envconfig:"QUEUE_SIZE" yaml:"queue_size"`

	// Native bridge
	SizeHint  int  `envconfig:"BRIDGE_SIZE_HINT" yaml:"bridge_size_hint"`
	FixedSize bool `envconfig:"BRIDGE_FIXED_SIZE" yaml:"bridge_fixed_size"`

	// Logging
	LogLevel       string `envconfig:"LOG_LEVEL" yaml:"log_level"`
	LogDevelopment bool   `envconfig:"LOG_DEV" yaml:"log_development"`

	// Metrics
	MetricsEnabled   bool   `envconfig:"METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" yaml:"metrics_namespace"`

	// Redis bridge
	RedisAddr         string        `envconfig:"REDIS_ADDR" yaml:"redis_addr"`
	RedisDB           int           `envconfig:"REDIS_DB" yaml:"redis_db"`
	RedisBatchSize    int           `envconfig:"REDIS_BATCH_SIZE" yaml:"redis_batch_size"`
	RedisBlockTimeout time.Duration `envconfig:"REDIS_BLOCK_TIMEOUT" yaml:"redis_block_timeout"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		HighWaterMark:       16 * 1024,
		ObjectHighWaterMark: 16,
		AutoDestroy:         true,
		EmitClose:           true,
		LoopName:            "main",
		SizeHint:            bridge.DefaultSizeHint,
		LogLevel:            "info",
		MetricsEnabled:      true,
		MetricsNamespace:    metrics.DefaultNamespace,
		RedisAddr:           "localhost:6379",
		RedisBatchSize:      64,
	}
}

// Load starts from Default, overlays the YAML file at path when path is not
// empty, then overlays GOSTREAM_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns the
// defaults.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

func (c *Config) loadFile(path string) error {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", clean, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	const module = "config"
	err := multierr.Combine(
		validation.ValidateNonNegative(module, "HighWaterMark", float64(c.HighWaterMark)),
		validation.ValidateAtMost(module, "HighWaterMark", c.HighWaterMark, stream.MaxHighWaterMark),
		validation.ValidateNonNegative(module, "ObjectHighWaterMark", float64(c.ObjectHighWaterMark)),
		validation.ValidateNonNegative(module, "Workers", float64(c.Workers)),
		validation.ValidateNonNegative(module, "QueueSize", float64(c.QueueSize)),
		validation.ValidatePositive(module, "SizeHint", c.SizeHint),
		validation.ValidateAtMost(module, "SizeHint", c.SizeHint, stream.MaxHighWaterMark),
		validation.ValidateOneOf(module, "LogLevel", c.LogLevel, "debug", "info", "warn", "error"),
		validation.ValidatePositive(module, "RedisBatchSize", c.RedisBatchSize),
	)
	if c.Encoding != "" {
		if _, encErr := stream.NormalizeEncoding(c.Encoding); encErr != nil {
			err = multierr.Append(err, encErr)
		}
	}
	return err
}

// ApplyReadable sets the lifecycle options of cfg and fills an unset
// (negative) high-water mark and an empty encoding.
func (c *Config) ApplyReadable(cfg *stream.ReadableConfig) {
	c.applyOptions(&cfg.Options)
	if cfg.HighWaterMark < 0 {
		cfg.HighWaterMark = c.highWaterMark(cfg.ObjectMode)
	}
	if cfg.Encoding == "" {
		cfg.Encoding = c.Encoding
	}
}

// ApplyWritable fills unset fields of cfg with the configured defaults.
func (c *Config) ApplyWritable(cfg *stream.WritableConfig) {
	c.applyOptions(&cfg.Options)
	if cfg.HighWaterMark < 0 {
		cfg.HighWaterMark = c.highWaterMark(cfg.ObjectMode)
	}
}

// ApplyTransform fills unset fields of cfg with the configured defaults.
func (c *Config) ApplyTransform(cfg *stream.TransformConfig) {
	c.applyOptions(&cfg.Options)
	if cfg.ReadableHighWaterMark < 0 {
		cfg.ReadableHighWaterMark = c.highWaterMark(cfg.ReadableObjectMode)
	}
	if cfg.WritableHighWaterMark < 0 {
		cfg.WritableHighWaterMark = c.highWaterMark(cfg.WritableObjectMode)
	}
}

// ApplyBridge applies ApplyReadable and replaces an unset or default size
// hint.
func (c *Config) ApplyBridge(cfg *bridge.ReadableConfig) {
	c.ApplyReadable(&cfg.ReadableConfig)
	if cfg.SizeHint <= 0 || cfg.SizeHint == bridge.DefaultSizeHint {
		cfg.SizeHint = c.SizeHint
	}
	cfg.FixedSize = cfg.FixedSize || c.FixedSize
}

func (c *Config) applyOptions(opts *stream.Options) {
	opts.AutoDestroy = c.AutoDestroy
	opts.EmitClose = c.EmitClose
}

func (c *Config) highWaterMark(objectMode bool) int {
	if objectMode {
		return c.ObjectHighWaterMark
	}
	return c.HighWaterMark
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if c.LogDevelopment {
		cfg = logging.DevelopmentConfig()
	}
	cfg.Level = c.LogLevel
	return cfg
}

// Metrics returns the metrics configuration registering on reg.
func (c *Config) Metrics(reg prometheus.Registerer) metrics.Config {
	return metrics.Config{
		Enabled:   c.MetricsEnabled,
		Registry:  reg,
		Namespace: c.MetricsNamespace,
	}
}

// Loop returns the event loop configuration.
func (c *Config) Loop(logger *zap.Logger, reg *metrics.Registry) eventloop.Config {
	return eventloop.Config{
		Name:      c.LoopName,
		Workers:   c.Workers,
		QueueSize: c.QueueSize,
		Logger:    logger,
		Metrics:   reg,
	}
}

// RedisOptions returns client options for the Redis bridge.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{Addr: c.RedisAddr, DB: c.RedisDB}
}

// RedisBridge returns the Redis bridge configuration using client.
func (c *Config) RedisBridge(client redis.UniversalClient) redisbridge.Config {
	cfg := redisbridge.DefaultConfig()
	cfg.Redis = client
	cfg.BatchSize = c.RedisBatchSize
	cfg.BlockTimeout = c.RedisBlockTimeout
	return cfg
}
