package redisbridge

import (
	"context"
	"sync"
)

// ListSink appends delimiter-terminated elements to the tail of a Redis
// list. Bytes after the last delimiter are held until more data or Close
// arrives. It implements bridge.Sink and bridge.Aborter.
type ListSink struct {
	key    string
	config Config

	mu     sync.Mutex
	tail   []byte
	pushed int64
}

// NewListSink creates a sink appending to the list at key.
func NewListSink(key string, config Config) (*ListSink, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, &ConfigError{"key is required"}
	}
	return &ListSink{key: key, config: applyConfigDefaults(config)}, nil
}

// Write pushes every complete element in p.
func (s *ListSink) Write(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elements, rest := splitElements(s.tail, p, s.config.Delimiter)
	if err := s.writeMany(ctx, elements); err != nil {
		return 0, err
	}
	s.tail = rest
	return len(p), nil
}

// Close pushes an unterminated trailing element, if any.
func (s *ListSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tail) == 0 {
		return nil
	}
	err := s.writeMany(ctx, []string{string(s.tail)})
	s.tail = nil
	return err
}

// Abort drops the unterminated trailing element.
func (s *ListSink) Abort(error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tail = nil
	return nil
}

// Pushed returns the number of elements appended to the list.
func (s *ListSink) Pushed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

// writeMany pushes elements in batches of BatchSize, one pipeline each.
func (s *ListSink) writeMany(ctx context.Context, elements []string) error {
	for len(elements) > 0 {
		n := min(len(elements), s.config.BatchSize)
		batch := make([]interface{}, n)
		for i, e := range elements[:n] {
			batch[i] = e
		}

		rctx, cancel := withTimeout(ctx, s.config.RedisTimeout)
		pipe := s.config.Redis.Pipeline()
		pipe.RPush(rctx, s.key, batch...)
		if s.config.KeyTTL > 0 {
			pipe.Expire(rctx, s.key, s.config.KeyTTL)
		}
		_, err := pipe.Exec(rctx)
		cancel()
		if err != nil {
			return &RedisError{"rpush", s.key, err}
		}

		s.pushed += int64(n)
		elements = elements[n:]
	}
	return nil
}
