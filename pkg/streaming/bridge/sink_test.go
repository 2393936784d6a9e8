package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/gostream/internal/testutil"
)

func TestWriterSinkBuffers(t *testing.T) {
	ctx := context.Background()
	mw := testutil.NewMockWriter()
	sink := NewWriterSinkWithConfig(mw, SinkConfig{BufferSize: 8})

	_, err := sink.Write(ctx, []byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, 0, mw.Len())
	assert.Equal(t, 4, sink.Buffered())

	_, err = sink.Write(ctx, []byte("efgh"))
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", mw.String())
	assert.Zero(t, sink.Buffered())

	_, err = sink.Write(ctx, []byte("ij"))
	require.NoError(t, err)
	require.NoError(t, sink.Close(ctx))
	assert.Equal(t, "abcdefghij", mw.String())
	assert.True(t, mw.IsClosed())

	stats := sink.Stats()
	assert.Equal(t, int64(3), stats.WriteCount)
	assert.Equal(t, int64(2), stats.FlushCount)
	assert.Equal(t, int64(10), stats.BytesWritten)

	_, err = sink.Write(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.NoError(t, sink.Close(ctx))
}

func TestWriterSinkRetries(t *testing.T) {
	mw := testutil.NewMockWriter()
	mw.SetErrorOnNth(1)

	var flushed []int
	sink := NewWriterSinkWithConfig(mw, SinkConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnFlush:    func(n int, _ time.Duration) { flushed = append(flushed, n) },
	})

	_, err := sink.Write(context.Background(), []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "data", mw.String())
	assert.Equal(t, 2, mw.WriteCount())
	assert.Equal(t, []int{4}, flushed)
}

func TestWriterSinkGivesUp(t *testing.T) {
	boom := errors.New("disk full")
	mw := testutil.NewMockWriter()
	mw.SetAlwaysError(boom)

	var reported error
	sink := NewWriterSinkWithConfig(mw, SinkConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnError:    func(err error) { reported = err },
	})

	_, err := sink.Write(context.Background(), []byte("data"))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, reported, boom)
	assert.Equal(t, 2, mw.WriteCount())
	assert.Equal(t, int64(1), sink.Stats().ErrorCount)
	assert.Equal(t, 4, sink.Buffered())
}

func TestWriterSinkRetryCanceled(t *testing.T) {
	mw := testutil.NewMockWriter()
	mw.SetAlwaysError(testutil.ErrSimulated)
	sink := NewWriterSinkWithConfig(mw, SinkConfig{MaxRetries: 5, RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sink.Write(ctx, []byte("data"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mw.WriteCount())
}

func TestWriterSinkAbort(t *testing.T) {
	mw := testutil.NewMockWriter()
	sink := NewWriterSink(mw)

	_, err := sink.Write(context.Background(), []byte("pending"))
	require.NoError(t, err)
	require.NoError(t, sink.Abort(errors.New("stop")))

	assert.Zero(t, mw.Len())
	assert.Zero(t, sink.Buffered())
	assert.ErrorIs(t, sink.Flush(context.Background()), ErrSinkClosed)
}
