package redisbridge

import (
	"bytes"
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/gostream/pkg/streaming/bridge"
)

// Config holds configuration for Redis list sources and sinks.
type Config struct {
	// Redis client for list operations
	Redis redis.UniversalClient

	// Delimiter terminates every list element in the byte stream.
	// Default: "\n"
	Delimiter []byte

	// BatchSize is the number of elements popped or pushed per round trip.
	// Default: 64
	BatchSize int

	// BlockTimeout makes a source wait this long for new elements once the
	// list is empty. Zero ends the stream at the first empty read.
	BlockTimeout time.Duration

	// RedisTimeout is the timeout for non-blocking Redis operations
	RedisTimeout time.Duration

	// KeyTTL is applied to the list after every push. Zero leaves it unset.
	KeyTTL time.Duration
}

// DefaultConfig returns a default configuration. Redis must still be set.
func DefaultConfig() Config {
	return Config{
		Delimiter:    []byte("\n"),
		BatchSize:    64,
		RedisTimeout: 500 * time.Millisecond,
	}
}

func validateConfig(config Config) error {
	if config.Redis == nil {
		return &ConfigError{"redis client is required"}
	}
	if config.BatchSize < 0 {
		return &ConfigError{"batch size must not be negative"}
	}
	if config.BlockTimeout < 0 {
		return &ConfigError{"block timeout must not be negative"}
	}
	return nil
}

// applyConfigDefaults sets default values for unspecified config fields.
func applyConfigDefaults(config Config) Config {
	if len(config.Delimiter) == 0 {
		config.Delimiter = []byte("\n")
	}
	if config.BatchSize == 0 {
		config.BatchSize = 64
	}
	if config.RedisTimeout == 0 {
		config.RedisTimeout = 500 * time.Millisecond
	}
	return config
}

// Opener returns a bridge.Opener reading the list named by the target.
func Opener(config Config) bridge.Opener {
	return func(key string) (bridge.Source, error) {
		return NewListSource(key, config)
	}
}

// SinkOpener returns a bridge.SinkOpener appending to the list named by
// the target.
func SinkOpener(config Config) bridge.SinkOpener {
	return func(key string) (bridge.Sink, error) {
		return NewListSink(key, config)
	}
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "redis bridge config error: " + e.Message
}

// RedisError represents a Redis operation error.
type RedisError struct {
	Operation string
	Key       string
	Err       error
}

func (e *RedisError) Error() string {
	return "redis error in " + e.Operation + " on " + e.Key + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

// splitElements cuts tail+p at every delimiter. The unterminated remainder
// is returned as the new tail.
func splitElements(tail, p, delim []byte) (elements []string, rest []byte) {
	data := append(tail, p...)
	for {
		i := bytes.Index(data, delim)
		if i < 0 {
			break
		}
		elements = append(elements, string(data[:i]))
		data = data[i+len(delim):]
	}
	if len(data) == 0 {
		return elements, nil
	}
	return elements, append([]byte(nil), data...)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
