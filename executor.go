package westcache

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrExecutorClosed = errors.New("executor closed")

// Executor 是共享的有界并发执行器，运行异步任务和定时任务。
type Executor struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	log    *zap.Logger
}

// NewExecutor 创建最多同时运行 size 个任务的执行器。
func NewExecutor(size int64, logger *zap.Logger) *Executor {
	if size <= 0 {
		size = DefaultExecutorSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		sem:    semaphore.NewWeighted(size),
		ctx:    ctx,
		cancel: cancel,
		log:    logger,
	}
}

// Future 是异步任务的结果。
type Future struct {
	done chan struct{}
	err  error
}

// Done 在任务结束时关闭。
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err 返回任务的错误，只有在 Done 关闭后才有意义。
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait 等待任务结束或 ctx 取消。
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit 异步运行 fn。fn 收到的是执行器的 context，不受提交者取消的影响。
func (e *Executor) Submit(fn func(ctx context.Context) error) *Future {
	f := &Future{done: make(chan struct{})}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(f.done)
		if e.ctx.Err() != nil {
			f.err = ErrExecutorClosed
			return
		}
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			f.err = ErrExecutorClosed
			return
		}
		defer e.sem.Release(1)
		f.err = safeRun(e.ctx, fn)
	}()
	return f
}

// ScheduledTask 是按固定频率运行的任务。
type ScheduledTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel 停止调度新的运行，不会中断正在进行的运行。
func (t *ScheduledTask) Cancel() {
	t.cancel()
}

// Done 在调度循环退出并且所有运行都结束后关闭。
func (t *ScheduledTask) Done() <-chan struct{} {
	return t.done
}

// IsDone 报告任务是否已经完全结束。
func (t *ScheduledTask) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// ScheduleAtFixedRate 在 initialDelay 之后按 period 的固定频率运行 fn。
// 每次运行都异步派发，因此一次运行超过周期时，下一次仍按时钟启动，运行可能重叠。
// 单次运行的 panic 会被恢复并记录，不会终止后续调度。
func (e *Executor) ScheduleAtFixedRate(initialDelay, period time.Duration, fn func(ctx context.Context)) *ScheduledTask {
	ctx, cancel := context.WithCancel(e.ctx)
	t := &ScheduledTask{cancel: cancel, done: make(chan struct{})}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		var runs sync.WaitGroup
		defer close(t.done)
		defer runs.Wait()

		timer := time.NewTimer(initialDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			e.dispatch(ctx, &runs, fn)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return t
}

func (e *Executor) dispatch(taskCtx context.Context, runs *sync.WaitGroup, fn func(ctx context.Context)) {
	runs.Add(1)
	go func() {
		defer runs.Done()
		if err := e.sem.Acquire(taskCtx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		err := safeRun(e.ctx, func(ctx context.Context) error {
			fn(ctx)
			return nil
		})
		if err != nil {
			e.log.Error("scheduled run failed", zap.Error(err))
		}
	}()
}

// Close 取消所有调度并等待正在运行的任务结束。
func (e *Executor) Close() {
	e.once.Do(func() {
		e.cancel()
		e.wg.Wait()
	})
}

func safeRun(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
