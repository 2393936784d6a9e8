package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/gostream/internal/testutil"
)

func TestRunOrdersTasksFIFO(t *testing.T) {
	l := New()
	defer l.Close()

	var order []int
	err := l.Run(context.Background(), func() {
		order = append(order, 0)
		l.NextTick(func() {
			order = append(order, 2)
			l.NextTick(func() { order = append(order, 4) })
		})
		l.NextTick(func() { order = append(order, 3) })
		order = append(order, 1)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, int64(4), l.Stats().TasksRun)
}

func TestRunWaitsForReferences(t *testing.T) {
	l := New()
	defer l.Close()

	var fired atomic.Bool
	err := l.Run(context.Background(), func() {
		l.Ref()
		go func() {
			time.Sleep(10 * time.Millisecond)
			l.NextTick(func() {
				fired.Store(true)
				l.Unref()
			})
		}()
	})

	require.NoError(t, err)
	assert.True(t, fired.Load())
}

func TestRunStopsOnContext(t *testing.T) {
	l := New()
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Run(ctx, func() { l.Ref() })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunRecoversPanic(t *testing.T) {
	l := New()
	defer l.Close()

	err := l.Run(context.Background(), func() { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunTwice(t *testing.T) {
	l := New()
	defer l.Close()

	err := l.Run(context.Background(), func() {
		assert.ErrorIs(t, l.Run(context.Background(), nil), ErrRunning)
	})
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Run(context.Background(), nil), ErrClosed)
}

func TestSpawn(t *testing.T) {
	for _, workers := range []int{0, 2} {
		l, err := NewWithConfig(Config{Name: "spawn", Workers: workers, QueueSize: 4})
		require.NoError(t, err)

		var results []int
		err = l.Run(context.Background(), func() {
			for i := 0; i < 3; i++ {
				i := i
				l.Spawn(func(ctx context.Context) func() {
					time.Sleep(time.Duration(3-i) * time.Millisecond)
					return func() { results = append(results, i) }
				})
			}
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{0, 1, 2}, results)
		assert.Equal(t, int64(3), l.Stats().Spawned)
		require.NoError(t, l.Close())
	}
}

func TestSpawnPanicSurfacesOnLoop(t *testing.T) {
	l := New()
	defer l.Close()

	err := l.Run(context.Background(), func() {
		l.Spawn(func(context.Context) func() { panic(errors.New("worker exploded")) })
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker exploded")
}

func TestGoDoesNotNeedAWorker(t *testing.T) {
	l, err := NewWithConfig(Config{Name: "go", Workers: 1, QueueSize: 4})
	require.NoError(t, err)
	defer l.Close()

	release := make(chan struct{})
	var order []string
	err = l.Run(context.Background(), func() {
		l.Spawn(func(context.Context) func() {
			<-release
			return func() { order = append(order, "pooled") }
		})
		l.Go(func(context.Context) func() {
			close(release)
			return func() { order = append(order, "go") }
		})
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pooled", "go"}, order)
	assert.Equal(t, int64(2), l.Stats().Spawned)
}

func TestAfterFunc(t *testing.T) {
	l := New()
	defer l.Close()

	start := time.Now()
	var fired, stopped bool
	err := l.Run(context.Background(), func() {
		l.AfterFunc(15*time.Millisecond, func() { fired = true })
		stop := l.AfterFunc(time.Hour, func() { stopped = true })
		assert.True(t, stop())
		assert.False(t, stop())
	})

	require.NoError(t, err)
	assert.True(t, fired)
	assert.False(t, stopped)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Equal(t, int64(1), l.Stats().TimersFired)

	tasks, refs := l.Pending()
	assert.Zero(t, tasks)
	assert.Zero(t, refs)
}

func TestNextTickFromManyGoroutines(t *testing.T) {
	l := New()
	defer l.Close()

	var count int
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	err := l.Run(ctx, func() {
		l.Ref()
		for g := 0; g < 8; g++ {
			go func() {
				for i := 0; i < 100; i++ {
					l.NextTick(func() {
						count++
						if count == 800 {
							l.Unref()
						}
					})
				}
			}()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 800, count)
}
