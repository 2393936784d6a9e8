package redisbridge

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/bytebufferpool"

	"github.com/vnykmshr/gostream/pkg/streaming/bridge"
)

// ListSource pops elements from the head of a Redis list and delivers them
// as delimiter-terminated bytes. It implements bridge.Source.
type ListSource struct {
	key      string
	config   Config
	canceled atomic.Bool
	popped   atomic.Int64
}

// NewListSource creates a source draining the list at key.
func NewListSource(key string, config Config) (*ListSource, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, &ConfigError{"key is required"}
	}
	return &ListSource{key: key, config: applyConfigDefaults(config)}, nil
}

// Start checks that Redis is reachable.
func (s *ListSource) Start(ctx context.Context, _ int) (int, error) {
	ctx, cancel := withTimeout(ctx, s.config.RedisTimeout)
	defer cancel()
	if err := s.config.Redis.Ping(ctx).Err(); err != nil {
		return 0, &RedisError{"ping", s.key, err}
	}
	return 0, nil
}

// PullInto pops up to BatchSize elements. The returned view is owned by the
// caller; buf is not used.
func (s *ListSource) PullInto(ctx context.Context, _ []byte) (bridge.PullResult, error) {
	if s.canceled.Load() {
		return bridge.PullResult{Done: true}, nil
	}

	elements, err := s.pop(ctx)
	if err != nil {
		return bridge.PullResult{}, err
	}
	if len(elements) == 0 {
		// A blocking source that timed out keeps waiting.
		return bridge.PullResult{Done: s.config.BlockTimeout == 0}, nil
	}
	s.popped.Add(int64(len(elements)))

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	for _, e := range elements {
		_, _ = bb.WriteString(e)
		_, _ = bb.Write(s.config.Delimiter)
	}
	return bridge.PullResult{View: append([]byte(nil), bb.B...)}, nil
}

func (s *ListSource) pop(ctx context.Context) ([]string, error) {
	rctx, cancel := withTimeout(ctx, s.config.RedisTimeout)
	elements, err := s.config.Redis.LPopCount(rctx, s.key, s.config.BatchSize).Result()
	cancel()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, &RedisError{"lpop", s.key, err}
	default:
		return elements, nil
	}

	if s.config.BlockTimeout == 0 {
		return nil, nil
	}
	res, err := s.config.Redis.BLPop(ctx, s.config.BlockTimeout, s.key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RedisError{"blpop", s.key, err}
	}
	// BLPOP replies with the key followed by the element.
	return res[1:], nil
}

// Cancel stops further pops. The client is left open.
func (s *ListSource) Cancel(error) error {
	s.canceled.Store(true)
	return nil
}

// Popped returns the number of elements removed from the list.
func (s *ListSource) Popped() int64 {
	return s.popped.Load()
}
