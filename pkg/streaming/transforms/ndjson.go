package transforms

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// NDJSONConfig configures the NDJSON transforms.
type NDJSONConfig struct {
	stream.TransformConfig

	// New returns a pointer to decode a line into. Nil decodes into any.
	New func() any

	// MaxLineLength fails decoding when a line grows beyond it.
	// Zero means no limit.
	MaxLineLength int
}

// DefaultNDJSONConfig returns the default configuration.
func DefaultNDJSONConfig() NDJSONConfig {
	return NDJSONConfig{TransformConfig: stream.DefaultTransformConfig()}
}

// NDJSONEncode turns written values into newline-delimited JSON bytes.
func NDJSONEncode(loop *eventloop.Loop, cfg NDJSONConfig) *stream.Transform {
	tc := cfg.TransformConfig
	if tc.Name == "" {
		tc.Name = "ndjson-encode"
	}
	tc.WritableObjectMode, tc.ReadableObjectMode = true, false
	tc.Transform = func(t *stream.Transform, chunk any, done *stream.Completion) {
		data, err := sonic.Marshal(chunk)
		if err != nil {
			done.Done(fmt.Errorf("ndjson encode: %w", err))
			return
		}
		t.Push(append(data, '\n'))
		done.Done(nil)
	}
	return stream.NewTransform(loop, tc)
}

// NDJSONDecode parses newline-delimited JSON bytes into values. Blank lines
// are skipped and a final line without a newline is still decoded.
func NDJSONDecode(loop *eventloop.Loop, cfg NDJSONConfig) *stream.Transform {
	tc := cfg.TransformConfig
	if tc.Name == "" {
		tc.Name = "ndjson-decode"
	}
	tc.WritableObjectMode, tc.ReadableObjectMode = false, true
	tc.DecodeStrings = true

	var partial []byte
	line := 0
	decode := func(t *stream.Transform, raw []byte) error {
		line++
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			return nil
		}
		v, err := decodeValue(raw, cfg.New)
		if err != nil {
			return fmt.Errorf("ndjson decode line %d: %w", line, err)
		}
		t.Push(v)
		return nil
	}

	tc.Transform = func(t *stream.Transform, chunk any, done *stream.Completion) {
		data := chunk.([]byte)
		for {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				break
			}
			raw := data[:i]
			if len(partial) > 0 {
				raw = append(partial, raw...)
				partial = nil
			}
			if err := decode(t, raw); err != nil {
				done.Done(err)
				return
			}
			data = data[i+1:]
		}
		partial = append(partial, data...)
		if cfg.MaxLineLength > 0 && len(partial) > cfg.MaxLineLength {
			done.Done(fmt.Errorf("ndjson decode line %d: %w", line+1, ErrLineTooLong))
			return
		}
		done.Done(nil)
	}
	tc.Flush = func(t *stream.Transform, done *stream.Completion) {
		raw := partial
		partial = nil
		done.Done(decode(t, raw))
	}
	return stream.NewTransform(loop, tc)
}

func decodeValue(raw []byte, newValue func() any) (any, error) {
	if newValue == nil {
		var v any
		if err := sonic.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	v := newValue()
	if err := sonic.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}
