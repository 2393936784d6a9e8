package transforms

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/multierr"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// CodecConfig configures the compression transforms.
type CodecConfig struct {
	stream.TransformConfig

	// Level is the compression level. Zero selects the codec default.
	Level int

	// FlushEachChunk emits compressed output for every written chunk instead
	// of letting the encoder batch it.
	FlushEachChunk bool

	// ChunkSize is the size of decompressed chunks.
	// Default: 64KB
	ChunkSize int
}

// DefaultCodecConfig returns a byte-mode codec configuration.
func DefaultCodecConfig() CodecConfig {
	return CodecConfig{
		TransformConfig: stream.DefaultTransformConfig(),
		ChunkSize:       64 * 1024,
	}
}

// encoder is the part of gzip.Writer and zstd.Encoder the transforms use.
type encoder interface {
	io.WriteCloser
	Flush() error
}

// Gzip compresses the byte stream with gzip.
func Gzip(loop *eventloop.Loop, cfg CodecConfig) *stream.Transform {
	return newEncoder(loop, "gzip", cfg, func(w io.Writer) (encoder, error) {
		level := cfg.Level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		return gzip.NewWriterLevel(w, level)
	})
}

// Zstd compresses the byte stream with zstd.
func Zstd(loop *eventloop.Loop, cfg CodecConfig) *stream.Transform {
	return newEncoder(loop, "zstd", cfg, func(w io.Writer) (encoder, error) {
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if cfg.Level != 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.Level)))
		}
		return zstd.NewWriter(w, opts...)
	})
}

// newEncoder compresses on the loop. Encoder output collects in a pooled
// buffer and is pushed after every write.
func newEncoder(loop *eventloop.Loop, name string, cfg CodecConfig, open func(io.Writer) (encoder, error)) *stream.Transform {
	tc := cfg.TransformConfig
	if tc.Name == "" {
		tc.Name = name
	}
	tc.ReadableObjectMode, tc.WritableObjectMode = false, false
	tc.DecodeStrings = true

	out := bytebufferpool.Get()
	var enc encoder
	var closed bool

	emit := func(t *stream.Transform) {
		if out.Len() > 0 {
			t.Push(append([]byte(nil), out.B...))
			out.Reset()
		}
	}
	release := func() error {
		if closed {
			return nil
		}
		closed = true
		var err error
		if enc != nil {
			err = enc.Close()
		}
		bytebufferpool.Put(out)
		return err
	}

	userConstruct, userDestroy := tc.Construct, tc.Destroy
	tc.Construct = func(done *stream.Completion) {
		var err error
		if enc, err = open(out); err != nil || userConstruct == nil {
			done.Done(err)
			return
		}
		userConstruct(done)
	}
	tc.Transform = func(t *stream.Transform, chunk any, done *stream.Completion) {
		if _, err := enc.Write(chunk.([]byte)); err != nil {
			done.Done(err)
			return
		}
		if cfg.FlushEachChunk {
			if err := enc.Flush(); err != nil {
				done.Done(err)
				return
			}
		}
		emit(t)
		done.Done(nil)
	}
	tc.Flush = func(t *stream.Transform, done *stream.Completion) {
		err := enc.Close()
		enc = nil
		emit(t)
		done.Done(multierr.Append(err, release()))
	}
	tc.Destroy = func(err error, done *stream.Completion) {
		_ = release()
		if userDestroy != nil {
			userDestroy(err, done)
			return
		}
		done.Done(err)
	}
	return stream.NewTransform(loop, tc)
}

// Gunzip decompresses a gzip byte stream. Multiple concatenated members
// are read as one stream.
func Gunzip(loop *eventloop.Loop, cfg CodecConfig) *stream.Transform {
	return newDecoder(loop, "gunzip", cfg, func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	})
}

// Unzstd decompresses a zstd byte stream.
func Unzstd(loop *eventloop.Loop, cfg CodecConfig) *stream.Transform {
	return newDecoder(loop, "unzstd", cfg, func(r io.Reader) (io.ReadCloser, error) {
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	})
}
