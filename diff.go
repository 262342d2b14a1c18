package westcache

import (
	"slices"
)

// FlushPlan 是一次对比的结果。
type FlushPlan struct {
	// FullKeys 需要从底层值缓存中逐出的存活 Key。
	FullKeys []string
	// PrefixKeys 需要从 PrefixValueCache 中失效的前缀 Key。
	PrefixKeys []string
	// Changed 旧表中被删除或版本变化的行。
	Changed []FlusherBean
}

// Empty 报告计划是否没有任何逐出。
func (p FlushPlan) Empty() bool {
	return len(p.FullKeys) == 0 && len(p.PrefixKeys) == 0
}

// Diff 对比旧表和新表，并把变化的行展开为存活 Key 上的逐出计划。
//
// 旧表中的行如果在新表中找不到相同 CacheKey 且相同 ValueVersion 的行，就视为变化
// （覆盖删除和版本升级）；新增的行下面还没有缓存，不需要逐出。
// 对每个存活 Key K：等于某个变化的 Full 行 → 逐出 K；
// 否则对每个真前缀匹配 K 的变化 Prefix 行 → 逐出 K 并失效该前缀。
//
// 调用方负责处理未初始化表（nil）和完全相同的表，这里不会对它们做特殊处理。
func Diff(oldTable, newTable *Table, liveKeys []string) FlushPlan {
	var plan FlushPlan
	changedFull := make(map[string]struct{})
	var changedPrefix []FlusherBean

	for _, b := range oldTable.beans {
		found, ok := newTable.byCacheKey(b.CacheKey)
		if ok && found.ValueVersion == b.ValueVersion {
			continue
		}
		plan.Changed = append(plan.Changed, b)
		switch b.KeyMatch {
		case KeyMatchFull:
			changedFull[b.CacheKey] = struct{}{}
		case KeyMatchPrefix:
			changedPrefix = append(changedPrefix, b)
		}
	}
	if len(plan.Changed) == 0 {
		return plan
	}

	full := make(map[string]struct{})
	prefix := make(map[string]struct{})
	for _, key := range liveKeys {
		if _, ok := changedFull[key]; ok {
			full[key] = struct{}{}
			continue
		}
		for _, b := range changedPrefix {
			if IsPrefix(key, b.CacheKey) {
				full[key] = struct{}{}
				prefix[b.CacheKey] = struct{}{}
			}
		}
	}

	plan.FullKeys = sortedKeys(full)
	plan.PrefixKeys = sortedKeys(prefix)
	return plan
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
