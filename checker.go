package westcache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CheckerState 是轮询调度的状态。
type CheckerState int32

const (
	StateIdle     CheckerState = iota // 尚未轮询
	StateStarting                     // 第一次轮询进行中
	StateRunning                      // 定时轮询已调度
	StateStopping                     // 已请求取消，等待运行结束
)

func (s CheckerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// State 返回当前调度状态。
func (f *TableFlusher) State() CheckerState {
	return CheckerState(f.state.Load())
}

// ensureStarted 在每次查找时调用。已经运行时不加锁直接返回；
// 否则加锁后再次检查，只有一个调用方执行启动。
func (f *TableFlusher) ensureStarted(ctx context.Context, cacheKey string) error {
	if f.State() == StateRunning {
		return nil
	}

	f.startMu.Lock()
	defer f.startMu.Unlock()
	if f.State() == StateRunning {
		return nil
	}

	f.state.Store(int32(StateStarting))
	f.startupKey = cacheKey
	if err := f.firstPoll(ctx, cacheKey); err != nil {
		f.state.Store(int32(StateIdle))
		return err
	}

	interval := f.opts.rotateInterval
	f.task = f.opts.executor.ScheduleAtFixedRate(interval, interval, f.rotate)
	f.state.Store(int32(StateRunning))
	f.log.Info("rotate checker started",
		zap.String("cacheKey", cacheKey),
		zap.Duration("interval", interval))
	return nil
}

// firstPoll 运行第一次轮询。
// 没有快照存储时同步运行；否则提交到执行器并最多等待 snapshotTimeout，
// 超时后如果找到快照就立即返回，轮询在后台继续并在完成后填充表。
func (f *TableFlusher) firstPoll(ctx context.Context, cacheKey string) error {
	if f.opts.snapshot == nil {
		return f.poll(ctx, cacheKey)
	}

	f.inflight.Add(1)
	future := f.opts.executor.Submit(func(ctx context.Context) error {
		return f.poll(ctx, cacheKey)
	})
	go func() {
		<-future.Done()
		f.inflight.Add(-1)
	}()

	timer := time.NewTimer(f.opts.snapshotTimeout)
	defer timer.Stop()
	select {
	case <-future.Done():
		return future.Err()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	name := SnapshotName(cacheKey)
	f.log.Info("first poll timed out, trying snapshot",
		zap.String("cacheKey", cacheKey),
		zap.Duration("timeout", f.opts.snapshotTimeout))

	beans, found, err := f.opts.snapshot.ReadSnapshot(ctx, name)
	if err != nil {
		f.log.Warn("read snapshot failed", zap.String("name", name), zap.Error(err))
	}
	if found {
		f.opts.metrics.snapshotFallback()
		f.log.Info("snapshot found, first poll continues in background",
			zap.String("name", name),
			zap.Int("beans", len(beans)))
		go func() {
			<-future.Done()
			if err := future.Err(); err != nil {
				f.log.Error("background first poll failed", zap.String("cacheKey", cacheKey), zap.Error(err))
			}
		}()
		return nil
	}

	f.log.Info("snapshot not found, waiting for first poll", zap.String("name", name))
	return future.Wait(ctx)
}

// rotate 是定时轮询的一次运行。错误只记录，调度继续。
func (f *TableFlusher) rotate(ctx context.Context) {
	if err := f.poll(ctx, f.startupKey); err != nil {
		f.log.Error("rotate check failed", zap.Error(err))
	}
}

// Stop 取消定时轮询，等待正在进行的轮询结束，然后回到 Idle。
// 返回后不会再有 Stop 之前触发的轮询在运行；之后的查找会重新启动。
func (f *TableFlusher) Stop() {
	f.startMu.Lock()
	defer f.startMu.Unlock()

	task := f.task
	f.task = nil
	f.state.Store(int32(StateStopping))
	if task != nil {
		task.Cancel()
	}
	for (task != nil && !task.IsDone()) || f.inflight.Load() > 0 {
		time.Sleep(f.opts.stopPollInterval)
	}

	f.table.Store(nil)
	f.prefixCache.Clear()
	f.lastExecuted.Store(0)
	f.state.Store(int32(StateIdle))
	f.log.Info("rotate checker stopped")
}
