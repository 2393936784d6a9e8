package transforms

import (
	"bytes"
	"errors"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// ErrLineTooLong is returned when a line exceeds the configured maximum.
var ErrLineTooLong = errors.New("line too long")

// LinesConfig configures Lines.
type LinesConfig struct {
	stream.TransformConfig

	// Delimiter separates lines.
	// Default: "\n"
	Delimiter []byte

	// KeepDelimiter leaves the delimiter at the end of each line.
	KeepDelimiter bool

	// TrimCR removes a trailing "\r" when splitting on "\n".
	TrimCR bool

	// MaxLineLength fails the stream when a line grows beyond it.
	// Zero means no limit.
	MaxLineLength int
}

// DefaultLinesConfig returns a configuration splitting on "\n".
func DefaultLinesConfig() LinesConfig {
	return LinesConfig{
		TransformConfig: stream.DefaultTransformConfig(),
		Delimiter:       []byte("\n"),
		TrimCR:          true,
	}
}

// Lines splits a byte stream into lines, emitting each as a string in
// object mode. A trailing line without a delimiter is emitted at the end.
func Lines(loop *eventloop.Loop, cfg LinesConfig) *stream.Transform {
	tc := cfg.TransformConfig
	if tc.Name == "" {
		tc.Name = "lines"
	}
	tc.WritableObjectMode, tc.ReadableObjectMode = false, true
	tc.DecodeStrings = true
	delim := cfg.Delimiter
	if len(delim) == 0 {
		delim = []byte("\n")
	}
	trimCR := cfg.TrimCR && bytes.Equal(delim, []byte("\n"))

	var partial []byte
	emit := func(t *stream.Transform, line []byte) {
		if trimCR && !cfg.KeepDelimiter {
			line = bytes.TrimSuffix(line, []byte("\r"))
		}
		t.Push(string(line))
	}

	tc.Transform = func(t *stream.Transform, chunk any, done *stream.Completion) {
		data := append(partial, chunk.([]byte)...)
		for {
			i := bytes.Index(data, delim)
			if i < 0 {
				break
			}
			end := i
			if cfg.KeepDelimiter {
				end += len(delim)
			}
			emit(t, data[:end])
			data = data[i+len(delim):]
		}
		partial = append([]byte(nil), data...)
		if cfg.MaxLineLength > 0 && len(partial) > cfg.MaxLineLength {
			done.Done(ErrLineTooLong)
			return
		}
		done.Done(nil)
	}
	tc.Flush = func(t *stream.Transform, done *stream.Completion) {
		if len(partial) > 0 {
			emit(t, partial)
			partial = nil
		}
		done.Done(nil)
	}
	return stream.NewTransform(loop, tc)
}
