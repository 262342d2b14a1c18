package westcache

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

// TableAdmin 是控制表的维护操作，由控制表的所有者使用。
type TableAdmin interface {
	BeanSource
	DirectValueSource
	// AddBean 新增一行，value 是可选的直接值。
	AddBean(ctx context.Context, bean FlusherBean, value []byte) error
	// UpgradeVersion 把行的版本加一。
	UpgradeVersion(ctx context.Context, cacheKey string) error
	// UpdateDirectValue 替换直接值并把版本加一。
	UpdateDirectValue(ctx context.Context, cacheKey string, value []byte) error
	// RemoveBean 删除一行。
	RemoveBean(ctx context.Context, cacheKey string) error
}

type memoryRow struct {
	bean  FlusherBean
	value []byte
}

// MemoryTable 是进程内的控制表，适合测试和单机使用。
type MemoryTable struct {
	mu   sync.RWMutex
	rows []memoryRow
}

var _ TableAdmin = (*MemoryTable)(nil)

// NewMemoryTable 创建控制表，beans 按顺序作为初始行。
func NewMemoryTable(beans ...FlusherBean) *MemoryTable {
	t := &MemoryTable{}
	for _, b := range beans {
		t.rows = append(t.rows, memoryRow{bean: b})
	}
	return t
}

func (t *MemoryTable) QueryAllBeans(ctx context.Context) ([]FlusherBean, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	beans := make([]FlusherBean, 0, len(t.rows))
	for _, r := range t.rows {
		beans = append(beans, r.bean)
	}
	return beans, nil
}

func (t *MemoryTable) ReadDirectValue(ctx context.Context, bean FlusherBean, kind DirectValueKind) (DirectValue, error) {
	t.mu.RLock()
	i := t.index(bean.CacheKey)
	var raw []byte
	if i >= 0 {
		raw = slices.Clone(t.rows[i].value)
	}
	t.mu.RUnlock()
	return tableDirectValue(raw, kind)
}

func (t *MemoryTable) AddBean(ctx context.Context, bean FlusherBean, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index(bean.CacheKey) >= 0 {
		return errors.Newf("flusher bean %q already exists", bean.CacheKey)
	}
	t.rows = append(t.rows, memoryRow{bean: bean, value: slices.Clone(value)})
	return nil
}

func (t *MemoryTable) UpgradeVersion(ctx context.Context, cacheKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.index(cacheKey)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "upgrade %q", cacheKey)
	}
	t.rows[i].bean.ValueVersion++
	return nil
}

func (t *MemoryTable) UpdateDirectValue(ctx context.Context, cacheKey string, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.index(cacheKey)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "update %q", cacheKey)
	}
	t.rows[i].value = slices.Clone(value)
	t.rows[i].bean.ValueVersion++
	return nil
}

func (t *MemoryTable) RemoveBean(ctx context.Context, cacheKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.index(cacheKey)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "remove %q", cacheKey)
	}
	t.rows = slices.Delete(t.rows, i, i+1)
	return nil
}

func (t *MemoryTable) index(cacheKey string) int {
	return slices.IndexFunc(t.rows, func(r memoryRow) bool {
		return r.bean.CacheKey == cacheKey
	})
}
