package westcache

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint 返回快照内容的 16 位十六进制摘要。
// 仅用于日志和快照记录，变更检测始终使用结构化比较。
func (t *Table) Fingerprint() string {
	if t == nil {
		return ""
	}
	return FingerprintBeans(t.beans)
}

// FingerprintBeans 对 Bean 序列按顺序计算 xxhash。
func FingerprintBeans(beans []FlusherBean) string {
	h := xxhash.New()
	for _, b := range beans {
		// 结构体字段顺序固定，encoding/json 的输出是确定的
		data, _ := json.Marshal(b)
		_, _ = h.Write(data)
		_, _ = h.Write([]byte{'\n'})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
