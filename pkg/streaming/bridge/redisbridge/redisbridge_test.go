package redisbridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/gostream/internal/testutil"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/bridge"
)

// setupRedis returns a client on a test database or skips the test.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis test in short mode")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skip("Redis not available")
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func testKey(t *testing.T, rdb *redis.Client) string {
	t.Helper()
	key := "gostream:test:" + strings.ReplaceAll(t.Name(), "/", ":")
	rdb.Del(context.Background(), key)
	t.Cleanup(func() { rdb.Del(context.Background(), key) })
	return key
}

func TestSplitElements(t *testing.T) {
	tests := []struct {
		name     string
		tail     string
		input    string
		elements []string
		rest     string
	}{
		{"complete", "", "a\nb\n", []string{"a", "b"}, ""},
		{"partial", "", "a\nb", []string{"a"}, "b"},
		{"joins tail", "hel", "lo\nwor", []string{"hello"}, "wor"},
		{"empty element", "", "\n\n", []string{"", ""}, ""},
		{"no delimiter", "x", "yz", nil, "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tail []byte
			if tt.tail != "" {
				tail = []byte(tt.tail)
			}
			elements, rest := splitElements(tail, []byte(tt.input), []byte("\n"))
			assert.Equal(t, tt.elements, elements)
			assert.Equal(t, tt.rest, string(rest))
		})
	}
}

func TestConfigValidation(t *testing.T) {
	_, err := NewListSource("k", Config{})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)

	_, err = NewListSink("", Config{Redis: redis.NewClient(&redis.Options{})})
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "key is required")

	cfg := applyConfigDefaults(Config{})
	assert.Equal(t, DefaultConfig().BatchSize, cfg.BatchSize)
	assert.Equal(t, "\n", string(cfg.Delimiter))
}

func TestListSinkAndSource(t *testing.T) {
	rdb := setupRedis(t)
	key := testKey(t, rdb)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Redis = rdb
	cfg.BatchSize = 2

	sink, err := NewListSink(key, cfg)
	require.NoError(t, err)
	_, err = sink.Write(ctx, []byte("one\ntwo\nth"))
	require.NoError(t, err)
	_, err = sink.Write(ctx, []byte("ree\nfour"))
	require.NoError(t, err)
	require.NoError(t, sink.Close(ctx))
	assert.Equal(t, int64(4), sink.Pushed())

	stored, err := rdb.LRange(ctx, key, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four"}, stored)

	src, err := NewListSource(key, cfg)
	require.NoError(t, err)
	out := &strings.Builder{}
	n, err := bridge.Copy(ctx, src, bridge.NewWriterSink(out), 0)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\nfour\n", out.String())
	assert.Equal(t, int64(out.Len()), n)
	assert.Equal(t, int64(4), src.Popped())
}

func TestListSourceOnLoop(t *testing.T) {
	rdb := setupRedis(t)
	key := testKey(t, rdb)
	require.NoError(t, rdb.RPush(context.Background(), key, "a", "b", "c").Err())

	cfg := DefaultConfig()
	cfg.Redis = rdb
	reg := bridge.NewRegistry()
	reg.Register("redis", Opener(cfg))

	l := eventloop.New()
	defer func() { _ = l.Close() }()

	var got []string
	testutil.Run(t, l, func() {
		r, err := reg.Open(l, "redis", key, bridge.DefaultReadableConfig())
		require.NoError(t, err)
		r.OnData(func(chunk any) { got = append(got, string(chunk.([]byte))) })
	})

	assert.Equal(t, "a\nb\nc\n", strings.Join(got, ""))
	assert.Zero(t, reg.Active("redis"))
}

func TestListSourceBlocksForNewElements(t *testing.T) {
	rdb := setupRedis(t)
	key := testKey(t, rdb)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	cfg := DefaultConfig()
	cfg.Redis = rdb
	cfg.BlockTimeout = 2 * time.Second
	src, err := NewListSource(key, cfg)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		rdb.RPush(context.Background(), key, "late")
	}()

	res, err := src.PullInto(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "late\n", string(res.View))
	assert.False(t, res.Done)

	require.NoError(t, src.Cancel(nil))
	res, err = src.PullInto(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.Done)
}

func TestQuotaConfigValidation(t *testing.T) {
	_, err := NewQuota(QuotaConfig{Key: "k", Rate: 1})
	assert.Error(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer rdb.Close()
	_, err = NewQuota(QuotaConfig{Redis: rdb, Rate: 1})
	assert.Error(t, err)
	_, err = NewQuota(QuotaConfig{Redis: rdb, Key: "k"})
	assert.Error(t, err)

	q, err := NewQuota(QuotaConfig{Redis: rdb, Key: "k", Rate: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, q.config.Burst)
	assert.Equal(t, time.Hour, q.config.KeyTTL)
}

func TestQuotaReserve(t *testing.T) {
	rdb := setupRedis(t)
	key := testKey(t, rdb)
	ctx := context.Background()

	cfg := DefaultQuotaConfig()
	cfg.Redis = rdb
	cfg.Key = key
	cfg.Rate = 1000
	cfg.Burst = 100
	q, err := NewQuota(cfg)
	require.NoError(t, err)

	delay, err := q.Reserve(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, delay, "a full bucket covers the burst")

	delay, err = q.Reserve(ctx, 100)
	require.NoError(t, err)
	assert.InDelta(t, 100*time.Millisecond, delay, float64(50*time.Millisecond))

	// a second process sharing the key sees the debt
	other, err := NewQuota(cfg)
	require.NoError(t, err)
	delay, err = other.Reserve(ctx, 50)
	require.NoError(t, err)
	assert.Greater(t, delay, 100*time.Millisecond)

	assert.EqualValues(t, 200, q.Reserved())
	assert.EqualValues(t, 50, other.Reserved())

	require.NoError(t, q.Reset(ctx))
	delay, err = q.Reserve(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, delay)
}
