package westcache

import "strings"

// Find 为缓存 Key 解析对应的 Bean。
// 所有 Full 行先于任何 Prefix 行检查，与行在表中的位置无关：精确匹配总是优先。
func (t *Table) Find(cacheKey string) (FlusherBean, bool) {
	if t == nil {
		return FlusherBean{}, false
	}
	for _, b := range t.beans {
		if b.KeyMatch == KeyMatchFull && b.CacheKey == cacheKey {
			return b, true
		}
	}
	for _, b := range t.beans {
		if b.KeyMatch == KeyMatchPrefix && IsPrefix(cacheKey, b.CacheKey) {
			return b, true
		}
	}
	return FlusherBean{}, false
}

// IsPrefix 检查 prefix 是否是 key 的真前缀：
// key 以 prefix 开头、比它更长，并且紧随其后的字符是分隔符（非 ASCII 字母或数字）。
// 因此 "getCities" 不是 "getCities2" 的前缀。
func IsPrefix(key, prefix string) bool {
	if prefix == "" || len(key) <= len(prefix) {
		return false
	}
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	return isSeparator(key[len(prefix)])
}

// SubKey 去掉前缀以及一个分隔符，返回子 Key。
// 调用方需要先确认 IsPrefix(key, prefix)。
func SubKey(key, prefix string) string {
	if len(key) <= len(prefix)+1 {
		return ""
	}
	return key[len(prefix)+1:]
}

func isSeparator(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	}
	return true
}
