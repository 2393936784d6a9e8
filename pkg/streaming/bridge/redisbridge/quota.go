package redisbridge

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaConfig configures a Quota.
type QuotaConfig struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// Key names the hash holding the bucket state.
	Key string

	// Rate is the number of units added per second.
	Rate float64

	// Burst is the maximum number of units that can be stored.
	Burst int

	// RedisTimeout is the timeout for each reservation
	RedisTimeout time.Duration

	// KeyTTL is how long the bucket outlives its last reservation.
	// Default: 1 hour
	KeyTTL time.Duration
}

// DefaultQuotaConfig returns a default configuration. Redis, Key and Rate
// must still be set.
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		RedisTimeout: 500 * time.Millisecond,
		KeyTTL:       time.Hour,
	}
}

// Quota is a token bucket kept in Redis, shared by every process that uses
// the same key. Reservations may overdraw the bucket; the returned delay
// is how long the caller must wait for its units to be covered. It
// satisfies transforms.Reserver.
type Quota struct {
	config   QuotaConfig
	script   *redis.Script
	reserved atomic.Int64
}

// NewQuota creates a quota. The bucket starts full.
func NewQuota(config QuotaConfig) (*Quota, error) {
	if config.Redis == nil {
		return nil, &ConfigError{"redis client is required"}
	}
	if config.Key == "" {
		return nil, &ConfigError{"key is required"}
	}
	if config.Rate <= 0 {
		return nil, &ConfigError{"rate must be positive"}
	}
	if config.Burst <= 0 {
		config.Burst = max(int(config.Rate), 1)
	}
	if config.RedisTimeout == 0 {
		config.RedisTimeout = 500 * time.Millisecond
	}
	if config.KeyTTL <= 0 {
		config.KeyTTL = time.Hour
	}
	return &Quota{config: config, script: redis.NewScript(luaReserve)}, nil
}

// Reserve books n units and returns how long to wait before they may be
// used.
func (q *Quota) Reserve(ctx context.Context, n int) (time.Duration, error) {
	if n <= 0 {
		return 0, nil
	}
	ctx, cancel := withTimeout(ctx, q.config.RedisTimeout)
	defer cancel()

	res, err := q.script.Run(ctx, q.config.Redis, []string{q.config.Key},
		n,
		timeToFloat(time.Now()),
		q.config.Rate,
		q.config.Burst,
		q.config.KeyTTL.Milliseconds(),
	).Text()
	if err != nil {
		return 0, &RedisError{"reserve", q.config.Key, err}
	}
	delay, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, &RedisError{"reserve", q.config.Key, err}
	}
	q.reserved.Add(int64(n))
	return time.Duration(delay * float64(time.Second)), nil
}

// Reserved returns the number of units this quota has booked.
func (q *Quota) Reserved() int64 {
	return q.reserved.Load()
}

// Reset refills the bucket for every process sharing it.
func (q *Quota) Reset(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, q.config.RedisTimeout)
	defer cancel()
	if err := q.config.Redis.Del(ctx, q.config.Key).Err(); err != nil {
		return &RedisError{"reset", q.config.Key, err}
	}
	return nil
}

// timeToFloat converts time to float64 seconds for Redis storage.
func timeToFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// luaReserve refills the bucket for the time elapsed since the last call,
// takes the requested units and reports the wait in seconds.
const luaReserve = `
-- KEYS[1]: bucket hash
-- ARGV[1]: units requested
-- ARGV[2]: current time
-- ARGV[3]: refill rate
-- ARGV[4]: capacity
-- ARGV[5]: ttl in milliseconds

local key = KEYS[1]
local requested = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local capacity = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed * rate) - requested

redis.call('HSET', key, 'tokens', tostring(tokens), 'last', tostring(math.max(now, last)))
redis.call('PEXPIRE', key, ttl)

if tokens >= 0 then
    return "0"
end
return tostring(-tokens / rate)
`
