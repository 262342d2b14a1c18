package westcache

import (
	"context"
)

// KeyRegistry 暴露底层值缓存中的存活 Key 以及逐出操作。
// 引擎只读取和逐出，从不写入。
type KeyRegistry interface {
	LiveKeys() []string
	Evict(key string)
}

// ValueCache 是进程内的底层值缓存：
// 同一 Key 的并发未命中只计算一次，计算期间被逐出的结果不会写回。
type ValueCache struct {
	m *loadingMap[any]
}

var _ KeyRegistry = (*ValueCache)(nil)

// NewValueCache 创建空的值缓存。
func NewValueCache() *ValueCache {
	return &ValueCache{m: newLoadingMap[any]()}
}

// GetOrCompute 返回缓存值，未命中时调用 compute 并缓存结果。
// compute 返回错误时不缓存。
func (c *ValueCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (any, error)) (any, error) {
	return c.m.load(ctx, key, compute)
}

// Peek 只读取，不触发计算。
func (c *ValueCache) Peek(key string) (any, bool) {
	return c.m.peek(key)
}

// LiveKeys 返回当前缓存的全部 Key。
func (c *ValueCache) LiveKeys() []string {
	return c.m.keys()
}

// Evict 逐出一个 Key。
func (c *ValueCache) Evict(key string) {
	c.m.invalidate(key)
}

// Len 返回缓存条目数。
func (c *ValueCache) Len() int {
	return c.m.len()
}
