package westcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fullBean(key string, version int64) FlusherBean {
	return FlusherBean{CacheKey: key, KeyMatch: KeyMatchFull, ValueVersion: version, ValueType: ValueTypeNone}
}

func prefixBean(key string, version int64) FlusherBean {
	return FlusherBean{CacheKey: key, KeyMatch: KeyMatchPrefix, ValueVersion: version, ValueType: ValueTypeNone}
}

func TestDiff_Identical(t *testing.T) {
	beans := []FlusherBean{fullBean("a", 1), prefixBean("p", 2)}
	plan := Diff(NewTable(beans), NewTable(beans), []string{"a", "p/x"})
	assert.True(t, plan.Empty())
	assert.Empty(t, plan.Changed)
}

func TestDiff_VersionBumpFull(t *testing.T) {
	oldT := NewTable([]FlusherBean{fullBean("a", 1), fullBean("b", 1)})
	newT := NewTable([]FlusherBean{fullBean("a", 2), fullBean("b", 1)})

	plan := Diff(oldT, newT, []string{"a", "b", "c"})
	assert.Equal(t, []string{"a"}, plan.FullKeys)
	assert.Empty(t, plan.PrefixKeys)
	assert.Equal(t, []FlusherBean{fullBean("a", 1)}, plan.Changed)
}

func TestDiff_RemovedBeanFlushes(t *testing.T) {
	oldT := NewTable([]FlusherBean{fullBean("a", 1)})
	newT := NewTable(nil)

	plan := Diff(oldT, newT, []string{"a"})
	assert.Equal(t, []string{"a"}, plan.FullKeys)
}

func TestDiff_AddedBeanDoesNotFlush(t *testing.T) {
	oldT := NewTable([]FlusherBean{fullBean("a", 1)})
	newT := NewTable([]FlusherBean{fullBean("a", 1), fullBean("b", 0)})

	plan := Diff(oldT, newT, []string{"a", "b"})
	assert.True(t, plan.Empty())
}

func TestDiff_PrefixFanOut(t *testing.T) {
	oldT := NewTable([]FlusherBean{prefixBean("P", 0)})
	newT := NewTable([]FlusherBean{prefixBean("P", 1)})

	plan := Diff(oldT, newT, []string{"P/a", "P/b", "Pa", "Q/a", "P"})
	assert.Equal(t, []string{"P/a", "P/b"}, plan.FullKeys)
	assert.Equal(t, []string{"P"}, plan.PrefixKeys)
}

func TestDiff_ChangedPrefixWithoutLiveKeys(t *testing.T) {
	oldT := NewTable([]FlusherBean{prefixBean("P", 0)})
	newT := NewTable([]FlusherBean{prefixBean("P", 1)})

	plan := Diff(oldT, newT, nil)
	assert.True(t, plan.Empty())
	assert.Len(t, plan.Changed, 1)
}

func TestDiff_OnlyOrderChanged(t *testing.T) {
	// 顺序变化使表不相等，但没有行变化，因此没有逐出
	oldT := NewTable([]FlusherBean{fullBean("a", 1), fullBean("b", 1)})
	newT := NewTable([]FlusherBean{fullBean("b", 1), fullBean("a", 1)})

	assert.False(t, oldT.Equal(newT))
	plan := Diff(oldT, newT, []string{"a", "b"})
	assert.True(t, plan.Empty())
}

func TestDiff_UnchangedFullKeyUnderChangedPrefix(t *testing.T) {
	oldT := NewTable([]FlusherBean{fullBean("P/a", 1), prefixBean("P", 1)})
	newT := NewTable([]FlusherBean{fullBean("P/a", 1), prefixBean("P", 2)})

	// 逐出以 Key 为单位展开：前缀变化会覆盖其下所有存活 Key
	plan := Diff(oldT, newT, []string{"P/a", "P/b"})
	assert.Equal(t, []string{"P/a", "P/b"}, plan.FullKeys)
	assert.Equal(t, []string{"P"}, plan.PrefixKeys)
}
