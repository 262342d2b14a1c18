package westcache

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Cache 是带控制表失效的方法结果缓存。
// 只有控制表中有对应行的 Key 才会被缓存；行的版本变化时，TableFlusher 从 values 中逐出它们。
type Cache struct {
	values  *ValueCache
	flusher *TableFlusher
	log     *zap.Logger
}

// NewCache 创建缓存。flusher 必须以 values 作为 KeyRegistry 创建。
func NewCache(values *ValueCache, flusher *TableFlusher, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{values: values, flusher: flusher, log: logger.Named("westcache")}
}

// Flusher 返回使用的 TableFlusher。
func (c *Cache) Flusher() *TableFlusher {
	return c.flusher
}

// TryGetCached 只读取已缓存的值，不触发计算。
// Key 没有对应的控制表行时返回 false。
func (c *Cache) TryGetCached(ctx context.Context, key string) (any, bool, error) {
	enabled, err := c.flusher.IsKeyEnabled(ctx, key)
	if err != nil || !enabled {
		return nil, false, err
	}
	v, ok := c.values.Peek(key)
	return v, ok, nil
}

// Get 返回 key 的值。
//
// 1. 控制表中没有对应行：直接调用 compute，不缓存。
// 2. 引擎出错（例如首次轮询失败）：记录日志，直接调用 compute。
// 3. 否则从缓存读取，未命中时先尝试直接值，再调用 compute，结果写入缓存。
func Get[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	enabled, err := c.flusher.IsKeyEnabled(ctx, key)
	if err != nil {
		c.log.Warn("table flusher unavailable, computing directly", zap.String("key", key), zap.Error(err))
		return compute(ctx)
	}
	if !enabled {
		return compute(ctx)
	}

	v, err := c.values.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
		return resolve(ctx, c, key, compute)
	})
	if err != nil {
		return zero, err
	}
	val, ok := v.(T)
	if !ok {
		return zero, errors.Newf("cached value for %q is %T, not %T", key, v, zero)
	}
	return val, nil
}

// ComputeAndStore 丢弃 key 的缓存值并重新解析、写入缓存。
func ComputeAndStore[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (T, error) {
	c.values.Evict(key)
	return Get(ctx, c, key, compute)
}

// resolve 先尝试直接值，没有时调用 compute。
func resolve[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (any, error) {
	raw, kind, found, err := c.flusher.directValue(ctx, key)
	if err != nil {
		c.log.Warn("read direct value failed, computing", zap.String("key", key), zap.Error(err))
		return compute(ctx)
	}
	if !found {
		return compute(ctx)
	}

	val, err := decodeValue[T](raw)
	if err == nil {
		return val, nil
	}
	if kind == DirectSub {
		// 单个子值解码失败按未命中处理
		c.log.Warn("decode sub value failed, computing", zap.String("key", key), zap.Error(err))
		return compute(ctx)
	}
	return nil, err
}
