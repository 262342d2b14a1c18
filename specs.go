package westcache

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
)

// Spec 中使用的键
const (
	SpecReadBy           = "readBy"           // 直接值读取方式: table(默认) | loader | redis
	SpecLoader           = "loader"           // 已注册 Loader 的名称
	SpecExpireAfterWrite = "expireAfterWrite" // 回填 Redis 时的过期时间
)

// readBy 取值
const (
	ReadByTable  = "table"
	ReadByLoader = "loader"
	ReadByRedis  = "redis"
)

// Specs 是 FlusherBean.Specs 解析后的键值对。
type Specs map[string]string

// ParseSpecs 解析 "k1=v1;k2=v2" 形式的配置。
// 没有 '=' 的项视为值为空，空键被忽略。
func ParseSpecs(s string) Specs {
	specs := make(Specs)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		specs[k] = strings.TrimSpace(v)
	}
	return specs
}

// Get 返回键对应的值，不存在时为空字符串。
func (s Specs) Get(key string) string {
	return s[key]
}

// Duration 解析时长，支持 d/w 等单位 (例如 "1d2h")。
func (s Specs) Duration(key string) (time.Duration, bool, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return 0, false, nil
	}
	d, err := str2duration.ParseDuration(v)
	if err != nil {
		return 0, false, errors.Wrapf(err, "invalid %s %q", key, v)
	}
	return d, true, nil
}
