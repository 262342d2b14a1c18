package westcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestExecutor_Submit(t *testing.T) {
	e := NewExecutor(2, zaptest.NewLogger(t))
	defer e.Close()

	ok := e.Submit(func(ctx context.Context) error { return nil })
	require.NoError(t, ok.Wait(context.Background()))

	failed := e.Submit(func(ctx context.Context) error { return errors.New("boom") })
	assert.EqualError(t, failed.Wait(context.Background()), "boom")
	assert.EqualError(t, failed.Err(), "boom")
}

func TestExecutor_SubmitRecoversPanic(t *testing.T) {
	e := NewExecutor(1, zaptest.NewLogger(t))
	defer e.Close()

	f := e.Submit(func(ctx context.Context) error { panic("bad") })
	err := f.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: bad")
}

func TestExecutor_WaitHonorsContext(t *testing.T) {
	e := NewExecutor(1, zaptest.NewLogger(t))
	defer e.Close()

	release := make(chan struct{})
	f := e.Submit(func(ctx context.Context) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, f.Err())

	close(release)
	<-f.Done()
	assert.NoError(t, f.Err())
}

func TestExecutor_BoundedConcurrency(t *testing.T) {
	e := NewExecutor(2, zaptest.NewLogger(t))
	defer e.Close()

	var running, peak atomic.Int32
	futures := make([]*Future, 0, 6)
	for i := 0; i < 6; i++ {
		futures = append(futures, e.Submit(func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}
	for _, f := range futures {
		require.NoError(t, f.Wait(context.Background()))
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecutor_SubmitAfterClose(t *testing.T) {
	e := NewExecutor(1, zaptest.NewLogger(t))
	e.Close()
	f := e.Submit(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, f.Wait(context.Background()), ErrExecutorClosed)
}

func TestExecutor_ScheduleAtFixedRate(t *testing.T) {
	e := NewExecutor(2, zaptest.NewLogger(t))
	defer e.Close()

	var runs atomic.Int32
	task := e.ScheduleAtFixedRate(5*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) {
		if runs.Add(1) == 2 {
			panic("second run fails")
		}
	})
	assert.Eventually(t, func() bool { return runs.Load() >= 4 }, time.Second, time.Millisecond)
	assert.False(t, task.IsDone())

	task.Cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not finish after cancel")
	}
	assert.True(t, task.IsDone())

	n := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, runs.Load())
}

func TestExecutor_CancelBeforeFirstRun(t *testing.T) {
	e := NewExecutor(1, zaptest.NewLogger(t))
	defer e.Close()

	var runs atomic.Int32
	task := e.ScheduleAtFixedRate(time.Hour, time.Hour, func(ctx context.Context) { runs.Add(1) })
	task.Cancel()
	<-task.Done()
	assert.Equal(t, int32(0), runs.Load())
}
