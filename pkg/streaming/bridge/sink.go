package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
)

// ErrSinkClosed is returned when writing to a closed WriterSink.
var ErrSinkClosed = errors.New("sink is closed")

// SinkStats holds statistics about a WriterSink.
type SinkStats struct {
	// BytesWritten is the total number of bytes handed to the underlying writer.
	BytesWritten int64

	// WriteCount is the total number of Write calls.
	WriteCount int64

	// FlushCount is the total number of flushes that wrote data.
	FlushCount int64

	// ErrorCount is the total number of failed flushes.
	ErrorCount int64

	// TotalFlushTime is the total time spent writing to the underlying writer.
	TotalFlushTime time.Duration

	// LastFlushTime is the timestamp of the last flush.
	LastFlushTime time.Time
}

// SinkConfig holds configuration options for a WriterSink.
type SinkConfig struct {
	// BufferSize is the number of bytes collected before they are written
	// through. Zero writes every call through.
	// Default: 64KB
	BufferSize int

	// MaxRetries is the number of times to retry a failed write.
	// Default: 3
	MaxRetries int

	// RetryDelay is the delay between retries.
	// Default: 100ms
	RetryDelay time.Duration

	// OnError is called when a flush fails.
	OnError func(error)

	// OnFlush is called after each flush.
	OnFlush func(bytesWritten int, duration time.Duration)
}

// DefaultSinkConfig returns a default configuration.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		BufferSize: 64 * 1024, // 64KB
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	}
}

// WriterSink buffers writes to an io.Writer and retries failed writes. It
// implements Sink and Flusher. An underlying writer that is an io.Closer is
// closed by Close.
type WriterSink struct {
	underlying io.Writer
	config     SinkConfig

	mu     sync.Mutex
	buffer *bytebufferpool.ByteBuffer
	closed bool
	stats  SinkStats
}

// NewWriterSink creates a WriterSink with default configuration.
func NewWriterSink(w io.Writer) *WriterSink {
	return NewWriterSinkWithConfig(w, DefaultSinkConfig())
}

// NewWriterSinkWithConfig creates a WriterSink with the specified configuration.
func NewWriterSinkWithConfig(w io.Writer, config SinkConfig) *WriterSink {
	if config.BufferSize < 0 {
		config.BufferSize = DefaultSinkConfig().BufferSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = DefaultSinkConfig().MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultSinkConfig().RetryDelay
	}
	return &WriterSink{
		underlying: w,
		config:     config,
		buffer:     bytebufferpool.Get(),
	}
}

// Write buffers p, writing the buffer through once it reaches BufferSize.
func (s *WriterSink) Write(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSinkClosed
	}
	s.stats.WriteCount++
	_, _ = s.buffer.Write(p)
	if s.buffer.Len() >= s.config.BufferSize {
		if err := s.flushLocked(ctx); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes all buffered data to the underlying writer.
func (s *WriterSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	return s.flushLocked(ctx)
}

// Close flushes the remaining data and closes the underlying writer.
func (s *WriterSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	err := s.flushLocked(ctx)
	s.release()
	if c, ok := s.underlying.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Abort drops buffered data without writing it.
func (s *WriterSink) Abort(error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.release()
	}
	return nil
}

// Stats returns statistics about the sink.
func (s *WriterSink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Buffered returns the number of bytes waiting to be written.
func (s *WriterSink) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.buffer.Len()
}

func (s *WriterSink) release() {
	s.closed = true
	bytebufferpool.Put(s.buffer)
	s.buffer = nil
}

func (s *WriterSink) flushLocked(ctx context.Context) error {
	if s.buffer.Len() == 0 {
		return nil
	}

	start := time.Now()
	written, err := s.writeWithRetries(ctx, s.buffer.B)
	duration := time.Since(start)

	// Keep what was not written so a later flush can retry it.
	rest := copy(s.buffer.B, s.buffer.B[written:])
	s.buffer.B = s.buffer.B[:rest]

	s.stats.FlushCount++
	s.stats.BytesWritten += int64(written)
	s.stats.TotalFlushTime += duration
	s.stats.LastFlushTime = time.Now()
	if err != nil {
		s.stats.ErrorCount++
	}

	if s.config.OnFlush != nil {
		s.config.OnFlush(written, duration)
	}
	if err != nil && s.config.OnError != nil {
		s.config.OnError(err)
	}
	return err
}

// writeWithRetries writes data with retry logic.
func (s *WriterSink) writeWithRetries(ctx context.Context, data []byte) (int, error) {
	var totalWritten int
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.config.RetryDelay):
			case <-ctx.Done():
				return totalWritten, ctx.Err()
			}
		}

		written, err := s.underlying.Write(data[totalWritten:])
		totalWritten += written

		if err != nil {
			lastErr = err
			continue
		}

		if totalWritten >= len(data) {
			return totalWritten, nil
		}
	}

	if lastErr == nil {
		lastErr = io.ErrShortWrite
	}
	return totalWritten, lastErr
}
