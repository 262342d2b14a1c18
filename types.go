package westcache

import "slices"

// KeyMatch 定义 FlusherBean 的 CacheKey 如何匹配缓存 Key。
type KeyMatch string

const (
	KeyMatchFull   KeyMatch = "full"   // 精确匹配单个 Key
	KeyMatchPrefix KeyMatch = "prefix" // 匹配共享前缀的一族 Key
)

// ValueType 定义缓存值的来源。
type ValueType string

const (
	ValueTypeNone   ValueType = "none"   // 由被缓存的方法计算
	ValueTypeDirect ValueType = "direct" // 由控制表直接提供
)

// DirectValueKind 区分读取整值还是前缀下的子值映射。
type DirectValueKind int

const (
	DirectFull DirectValueKind = iota
	DirectSub
)

func (k DirectValueKind) String() string {
	if k == DirectSub {
		return "sub"
	}
	return "full"
}

// FlusherBean 是控制表中的一行。
// 两个 Bean 按全部字段做结构化比较。
type FlusherBean struct {
	CacheKey     string    `json:"cacheKey" msgpack:"cacheKey"`
	KeyMatch     KeyMatch  `json:"keyMatch" msgpack:"keyMatch"`
	ValueVersion int64     `json:"valueVersion" msgpack:"valueVersion"`
	ValueType    ValueType `json:"valueType" msgpack:"valueType"`
	Specs        string    `json:"specs,omitempty" msgpack:"specs,omitempty"` // 为空表示没有配置
}

// IsDirect 报告值是否由控制表直接提供。
func (b FlusherBean) IsDirect() bool {
	return b.ValueType == ValueTypeDirect
}

// DirectValue 是 DirectValueSource 的读取结果。
// Full 读取使用 Raw，Sub 读取使用 Sub。
type DirectValue struct {
	Raw   []byte
	Sub   map[string]string
	Found bool
}

// Table 是控制表的一个不可变快照，保留行的原始顺序。
type Table struct {
	beans []FlusherBean
}

// NewTable 复制 beans 创建快照。
func NewTable(beans []FlusherBean) *Table {
	return &Table{beans: slices.Clone(beans)}
}

// Beans 返回快照内容的副本。
func (t *Table) Beans() []FlusherBean {
	if t == nil {
		return nil
	}
	return slices.Clone(t.beans)
}

// Len 返回行数。
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.beans)
}

// Equal 比较两个快照的完整有序内容。
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	return slices.Equal(t.beans, o.beans)
}

// byCacheKey 按 CacheKey 精确查找行（不区分匹配方式）。
func (t *Table) byCacheKey(cacheKey string) (FlusherBean, bool) {
	for _, b := range t.beans {
		if b.CacheKey == cacheKey {
			return b, true
		}
	}
	return FlusherBean{}, false
}
