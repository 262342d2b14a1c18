package westcache

import (
	"slices"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// DefaultName 是空名称对应的注册名。
const DefaultName = "default"

var ErrAlreadyRegistered = errors.New("registry name already exists")

// Registry 是按名称查找策略实例的注册表。
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewRegistry 创建一个空注册表。
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Register 注册实例，名称已存在时返回 ErrAlreadyRegistered。
func (r *Registry[T]) Register(name string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "register %q", name)
	}
	r.items[name] = v
	return nil
}

// RegisterForcely 注册实例，覆盖同名的已有实例。
func (r *Registry[T]) RegisterForcely(name string, v T) {
	r.mu.Lock()
	r.items[name] = v
	r.mu.Unlock()
}

// Deregister 移除实例。
func (r *Registry[T]) Deregister(name string) {
	r.mu.Lock()
	delete(r.items, name)
	r.mu.Unlock()
}

// Get 按名称查找实例。
// 空名称视为 "default"；精确名称不存在时，再尝试首字母小写后的名称。
func (r *Registry[T]) Get(name string) (T, bool) {
	key := name
	if key == "" {
		key = DefaultName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.items[key]; ok {
		return v, true
	}
	v, ok := r.items[uncapitalize(key)]
	return v, ok
}

// Names 返回已注册的名称（排序后）。
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.items))
	for k := range r.items {
		names = append(names, k)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

func uncapitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if first == utf8.RuneError || unicode.IsLower(first) {
		return s
	}
	return string(unicode.ToLower(first)) + s[size:]
}

// Registries 持有进程级的各类命名策略，在启动时显式创建并传入需要的组件。
type Registries struct {
	Loaders   *Registry[Loader]
	Snapshots *Registry[SnapshotStore]
	Flushers  *Registry[*TableFlusher]
}

// NewRegistries 创建一组空注册表。
func NewRegistries() *Registries {
	return &Registries{
		Loaders:   NewRegistry[Loader](),
		Snapshots: NewRegistry[SnapshotStore](),
		Flushers:  NewRegistry[*TableFlusher](),
	}
}
