package transforms

import (
	"bytes"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/gostream/internal/testutil"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/pipeline"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

var corpus = chunks(
	strings.Repeat("the quick brown fox ", 500),
	strings.Repeat("jumps over the lazy dog ", 700),
	"tail",
)

func TestGzipRoundTrip(t *testing.T) {
	got, err := through(t, corpus, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Gzip(l, DefaultCodecConfig()), Gunzip(l, DefaultCodecConfig()))
	})

	require.NoError(t, err)
	assert.Equal(t, join(corpus), join(got))
}

func TestGzipOutputIsStandard(t *testing.T) {
	cfg := DefaultCodecConfig()
	cfg.Level = gzip.BestSpeed
	cfg.FlushEachChunk = true
	got, err := through(t, corpus, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Gzip(l, cfg))
	})
	require.NoError(t, err)

	zr, err := gzip.NewReader(strings.NewReader(join(got)))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, join(corpus), string(plain))
}

func TestZstdRoundTrip(t *testing.T) {
	cfg := DefaultCodecConfig()
	cfg.Level = 3
	cfg.ChunkSize = 1024
	got, err := through(t, corpus, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Zstd(l, cfg), Unzstd(l, cfg))
	})

	require.NoError(t, err)
	assert.Equal(t, join(corpus), join(got))
}

func TestUnzstdReadsStandardFrames(t *testing.T) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	require.NoError(t, err)
	frame := enc.EncodeAll([]byte("hello zstd"), nil)
	require.NoError(t, enc.Close())

	got, err := through(t, []any{frame[:4], frame[4:]}, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Unzstd(l, DefaultCodecConfig()))
	})

	require.NoError(t, err)
	assert.Equal(t, "hello zstd", join(got))
}

func TestGunzipErrors(t *testing.T) {
	_, err := through(t, chunks("definitely not gzip"), func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Gunzip(l, DefaultCodecConfig()))
	})
	assert.ErrorIs(t, err, gzip.ErrHeader)

	_, err = through(t, nil, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Gunzip(l, DefaultCodecConfig()))
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestGunzipTruncated(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(strings.Repeat("payload ", 100)))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	truncated := buf.Bytes()[:buf.Len()/2]

	_, err = through(t, []any{truncated}, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Gunzip(l, DefaultCodecConfig()))
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestGunzipHoldsOutputWithoutReader(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(make([]byte, 8<<20))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	l := newLoop(t)
	cfg := DefaultCodecConfig()
	var buffered, hwm int
	testutil.Run(t, l, func() {
		gz := Gunzip(l, cfg)
		hwm = gz.ReadableHighWaterMark()
		gz.End(buf.Bytes(), nil)
		l.AfterFunc(50*time.Millisecond, func() {
			buffered = gz.ReadableLength()
			gz.Destroy(nil)
		})
	})

	assert.Positive(t, buffered)
	assert.LessOrEqual(t, buffered, hwm+cfg.ChunkSize)
}

func TestUnzstdOnSmallWorkerPool(t *testing.T) {
	l, err := eventloop.NewWithConfig(eventloop.Config{Name: "codec", Workers: 2, QueueSize: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	var out []any
	var result error
	testutil.Run(t, l, func() {
		src := stream.FromSeq(l, slices.Values(corpus), stream.DefaultFromConfig())
		err := pipeline.Run(l, func(v any, err error) {
			result = err
			if v != nil {
				out = v.([]any)
			}
		}, src, Zstd(l, DefaultCodecConfig()), Unzstd(l, DefaultCodecConfig()), collect)
		require.NoError(t, err)
	})

	require.NoError(t, result)
	assert.Equal(t, join(corpus), join(out))
}
