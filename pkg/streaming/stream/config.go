package stream

import (
	"context"

	"go.uber.org/zap"

	"github.com/vnykmshr/gostream/pkg/common/validation"
	"github.com/vnykmshr/gostream/pkg/metrics"
)

const (
	// DefaultHighWaterMark is the byte-mode high-water mark.
	DefaultHighWaterMark = 16 * 1024

	// DefaultObjectHighWaterMark is the object-mode high-water mark, in items.
	DefaultObjectHighWaterMark = 16

	// MaxHighWaterMark caps both configured and read-size driven high-water marks.
	MaxHighWaterMark = 1 << 30
)

// Options holds the settings shared by every stream kind.
type Options struct {
	// Name labels the stream in logs and metrics. Defaults to the stream kind.
	Name string

	// AutoDestroy tears the stream down after it ends or errors.
	AutoDestroy bool

	// EmitClose controls whether a close notification is emitted after teardown.
	EmitClose bool

	// Signal destroys the stream with an AbortError once it is done.
	Signal context.Context

	// Logger receives lifecycle events. Nil disables logging.
	Logger *zap.Logger

	// Metrics reports chunk, buffer and error figures. Nil disables metrics.
	Metrics *metrics.Registry

	// Construct runs once on the next tick. Reads, writes and final are
	// deferred until it completes.
	Construct func(done *Completion)

	// Destroy releases resources. It receives the teardown error, which it
	// may replace by passing another to done.
	Destroy func(err error, done *Completion)
}

// DefaultOptions returns the shared defaults.
func DefaultOptions() Options {
	return Options{AutoDestroy: true, EmitClose: true}
}

// ReadableConfig configures a Readable.
type ReadableConfig struct {
	Options

	// ObjectMode accepts any non-nil value as a chunk, counting each as one unit.
	ObjectMode bool

	// HighWaterMark is the buffered length at which Push starts returning
	// false. Negative selects the default for the mode. Zero is allowed.
	HighWaterMark int

	// Encoding decodes byte chunks into strings, see SetEncoding.
	Encoding string

	// Read is asked for more data. It delivers chunks with Push, possibly
	// later, and signals the end of data with Push(nil).
	Read func(r *Readable, size int)
}

// DefaultReadableConfig returns a byte-mode readable configuration.
func DefaultReadableConfig() ReadableConfig {
	return ReadableConfig{Options: DefaultOptions(), HighWaterMark: -1}
}

// WritableConfig configures a Writable.
type WritableConfig struct {
	Options

	// ObjectMode accepts any non-nil value as a chunk, counting each as one unit.
	ObjectMode bool

	// HighWaterMark is the buffered length at which Write starts returning
	// false. Negative selects the default for the mode.
	HighWaterMark int

	// DecodeStrings converts string chunks to []byte before they reach Write.
	DecodeStrings bool

	// DefaultEncoding is used by DecodeStrings. Empty means utf8.
	DefaultEncoding string

	// Write consumes one chunk and calls done once it has been handled.
	Write func(w *Writable, chunk any, done *Completion)

	// Writev, when set, receives every buffered chunk at once.
	Writev func(w *Writable, chunks []any, done *Completion)

	// Final runs once after End, before the finish notification.
	Final func(w *Writable, done *Completion)
}

// DefaultWritableConfig returns a byte-mode writable configuration.
func DefaultWritableConfig() WritableConfig {
	return WritableConfig{Options: DefaultOptions(), HighWaterMark: -1, DecodeStrings: true}
}

// DuplexConfig configures both sides of a Duplex.
type DuplexConfig struct {
	Options

	// AllowHalfOpen keeps one side open after the other ends. When false the
	// end of the readable side ends the writable side and vice versa.
	AllowHalfOpen bool

	ReadableObjectMode    bool
	WritableObjectMode    bool
	ReadableHighWaterMark int
	WritableHighWaterMark int
	DecodeStrings         bool
	DefaultEncoding       string
	Encoding              string

	Read   func(d *Duplex, size int)
	Write  func(d *Duplex, chunk any, done *Completion)
	Writev func(d *Duplex, chunks []any, done *Completion)
	Final  func(d *Duplex, done *Completion)
}

// DefaultDuplexConfig returns a byte-mode half-open duplex configuration.
func DefaultDuplexConfig() DuplexConfig {
	return DuplexConfig{
		Options:               DefaultOptions(),
		AllowHalfOpen:         true,
		ReadableHighWaterMark: -1,
		WritableHighWaterMark: -1,
		DecodeStrings:         true,
	}
}

// resolveHighWaterMark applies the mode default to negative values and
// rejects values above MaxHighWaterMark.
func resolveHighWaterMark(field string, hwm int, objectMode bool) (int, error) {
	if hwm < 0 {
		if objectMode {
			return DefaultObjectHighWaterMark, nil
		}
		return DefaultHighWaterMark, nil
	}
	if err := validation.ValidateAtMost("stream", field, hwm, MaxHighWaterMark); err != nil {
		return 0, err
	}
	return hwm, nil
}

// computeNewHighWaterMark rounds n up to the next power of two.
func computeNewHighWaterMark(n int) (int, error) {
	if n > MaxHighWaterMark {
		return 0, ErrOutOfRange
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n, nil
}
