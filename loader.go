package westcache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// poll 执行一次轮询：读取控制表，与当前表对比，逐出变化的 Key，替换当前表。
// 查询也在 pollMu 内进行：轮询串行执行，先读到的旧表不会在新表之后写入。
func (f *TableFlusher) poll(ctx context.Context, cacheKey string) error {
	f.pollMu.Lock()
	defer f.pollMu.Unlock()

	beans, err := f.source.QueryAllBeans(ctx)
	if err != nil {
		f.opts.metrics.poll(PollError)
		return errors.Wrapf(err, "query flusher beans for %q", cacheKey)
	}
	next := NewTable(beans)

	current := f.table.Load()
	switch {
	case current == nil:
		// 第一次拿到表，没有可比较的旧表
		f.table.Store(next)
		f.opts.metrics.poll(PollAdopted)
		f.log.Info("flusher table adopted",
			zap.String("cacheKey", cacheKey),
			zap.Int("beans", next.Len()),
			zap.String("fingerprint", next.Fingerprint()))
		f.saveSnapshot(ctx, cacheKey, next)

	case current.Equal(next):
		f.opts.metrics.poll(PollUnchanged)
		f.log.Debug("flusher table unchanged", zap.String("fingerprint", next.Fingerprint()))

	default:
		plan := Diff(current, next, f.registry.LiveKeys())
		f.apply(plan)
		f.table.Store(next)
		f.opts.metrics.poll(PollChanged)
		f.log.Info("flusher table changed",
			zap.Int("changed", len(plan.Changed)),
			zap.Int("flushedKeys", len(plan.FullKeys)),
			zap.Int("flushedPrefixes", len(plan.PrefixKeys)),
			zap.String("fingerprint", next.Fingerprint()))
		f.saveSnapshot(ctx, cacheKey, next)
	}

	f.lastExecuted.Store(time.Now().UnixNano())
	return nil
}

// apply 执行逐出计划。
func (f *TableFlusher) apply(plan FlushPlan) {
	for _, key := range plan.FullKeys {
		f.registry.Evict(key)
		f.log.Debug("flushed key", zap.String("key", key))
	}
	for _, key := range plan.PrefixKeys {
		f.prefixCache.Invalidate(key)
	}
	// 没有存活 Key 命中的前缀行也要失效，下一次子值读取才会重新加载
	for _, b := range plan.Changed {
		if b.KeyMatch == KeyMatchPrefix {
			f.prefixCache.Invalidate(b.CacheKey)
			f.log.Debug("flushed prefix", zap.String("prefix", b.CacheKey))
		}
	}
	f.opts.metrics.flush(plan)
}

// saveSnapshot 持久化当前表，供下次启动时在轮询超时后使用。失败只记录。
func (f *TableFlusher) saveSnapshot(ctx context.Context, cacheKey string, t *Table) {
	if f.opts.snapshot == nil {
		return
	}
	name := SnapshotName(cacheKey)
	if err := f.opts.snapshot.SaveSnapshot(ctx, name, t.Beans()); err != nil {
		f.log.Warn("save snapshot failed", zap.String("name", name), zap.Error(err))
	}
}
