package westcache

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// loadingMap 是带单飞加载的并发 Map。
// 正在加载的 Key 记录一个代数，失效时递增；加载完成时代数已变化的结果不会写回，
// 避免并发的失效被正在进行的加载覆盖。没有加载进行时不保留代数。
type loadingMap[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	loads   map[string]*loadState
	epoch   uint64
	group   singleflight.Group
}

// loadState 跟踪一个 Key 上进行中的加载。
type loadState struct {
	gen     uint64
	pending int
}

func newLoadingMap[V any]() *loadingMap[V] {
	return &loadingMap[V]{
		entries: make(map[string]V),
		loads:   make(map[string]*loadState),
	}
}

func (m *loadingMap[V]) peek(key string) (V, bool) {
	m.mu.RLock()
	v, ok := m.entries[key]
	m.mu.RUnlock()
	return v, ok
}

// load 返回已缓存的值，否则调用 fn 加载。同一 Key 的并发加载只执行一次。
// fn 收到的 ctx 不随第一个调用方取消，一个调用方放弃不会让其他等待者失败。
func (m *loadingMap[V]) load(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := m.peek(key); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	res, err, _ := m.group.Do(key, func() (any, error) {
		m.mu.Lock()
		if v, ok := m.entries[key]; ok {
			m.mu.Unlock()
			return v, nil
		}
		st := m.loads[key]
		if st == nil {
			st = &loadState{}
			m.loads[key] = st
		}
		st.pending++
		gen, epoch := st.gen, m.epoch
		m.mu.Unlock()
		defer m.finish(key, st)

		v, err := fn(loadCtx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if st.gen == gen && m.epoch == epoch {
			m.entries[key] = v
		}
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// finish 结束一次加载，最后一个加载结束时删除代数记录。
func (m *loadingMap[V]) finish(key string, st *loadState) {
	m.mu.Lock()
	st.pending--
	if st.pending == 0 && m.loads[key] == st {
		delete(m.loads, key)
	}
	m.mu.Unlock()
}

// invalidate 移除 Key，并让正在进行的加载结果作废。
func (m *loadingMap[V]) invalidate(key string) bool {
	m.mu.Lock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	if st := m.loads[key]; st != nil {
		st.gen++
	}
	m.mu.Unlock()
	m.group.Forget(key)
	return ok
}

func (m *loadingMap[V]) clear() {
	m.mu.Lock()
	m.entries = make(map[string]V)
	m.epoch++
	m.mu.Unlock()
}

func (m *loadingMap[V]) keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

func (m *loadingMap[V]) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
