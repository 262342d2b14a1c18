package westcache

import (
	"context"
)

// SubLoader 加载前缀行的子值映射。found=false 表示该前缀没有映射。
type SubLoader func(ctx context.Context) (sub map[string]string, found bool, err error)

type prefixEntry struct {
	sub   map[string]string
	found bool
}

// PrefixValueCache 按前缀行的 CacheKey 缓存其子值映射（子 Key -> 原始编码值）。
// 首次查找时懒加载，同一前缀同时最多加载一次；对比步骤判定前缀行变化时被失效。
type PrefixValueCache struct {
	m *loadingMap[prefixEntry]
}

// NewPrefixValueCache 创建空的前缀缓存。
func NewPrefixValueCache() *PrefixValueCache {
	return &PrefixValueCache{m: newLoadingMap[prefixEntry]()}
}

// Get 返回前缀的子值映射，未缓存时通过 load 加载。不存在的映射也会被缓存。
func (c *PrefixValueCache) Get(ctx context.Context, prefixKey string, load SubLoader) (map[string]string, bool, error) {
	e, err := c.m.load(ctx, prefixKey, func(ctx context.Context) (prefixEntry, error) {
		sub, found, err := load(ctx)
		if err != nil {
			return prefixEntry{}, err
		}
		return prefixEntry{sub: sub, found: found && sub != nil}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return e.sub, e.found, nil
}

// Lookup 返回前缀下某个子 Key 的原始值。
func (c *PrefixValueCache) Lookup(ctx context.Context, prefixKey, subKey string, load SubLoader) (string, bool, error) {
	sub, found, err := c.Get(ctx, prefixKey, load)
	if err != nil || !found {
		return "", false, err
	}
	raw, ok := sub[subKey]
	return raw, ok, nil
}

// Invalidate 失效前缀，下次访问时重新加载。
func (c *PrefixValueCache) Invalidate(prefixKey string) {
	c.m.invalidate(prefixKey)
}

// Clear 清空所有前缀。
func (c *PrefixValueCache) Clear() {
	c.m.clear()
}

// Keys 返回当前缓存的前缀。
func (c *PrefixValueCache) Keys() []string {
	return c.m.keys()
}
