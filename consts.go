package westcache

// prefix 目前使用的 Redis Key 前缀
var prefix = "westcache:"

// SetPrefix 设置全局 Redis Key 前缀。
// 这应该在任何其他操作之前调用。
func SetPrefix(p string) {
	prefix = p
	if len(prefix) > 0 && prefix[len(prefix)-1] != ':' {
		prefix += ":"
	}
}

// Prefix 返回当前的 Redis Key 前缀。
func Prefix() string {
	return prefix
}

// Suffix defs
const (
	SuffixFlushers = "flushers"  // 控制表行 (Hash: CacheKey -> Bean JSON)
	SuffixVersions = "versions"  // 行版本 (Hash: CacheKey -> ValueVersion)
	SuffixDirects  = "directs"   // 控制表直接值 (Hash: CacheKey -> Raw)
	SuffixUpdates  = "updates"   // 更新通知 Stream
	SuffixLock     = "lock:"     // 尽力而为的互斥锁
	SuffixSnapshot = "snapshot:" // 启动快照
)

// SnapshotSuffix 是启动快照名称的后缀。
const SnapshotSuffix = ".tableflushers"

// SnapshotName 返回某个缓存 Key 族的快照名称。
func SnapshotName(cacheKey string) string {
	return cacheKey + SnapshotSuffix
}

// Redis Key Helper

// KeyDirect 返回 readBy=redis 时直接值所在的 Redis Key。
func KeyDirect(cacheKey string) string {
	return prefix + cacheKey
}

// KeyFlushers 返回控制表行的 Redis Key。
func KeyFlushers() string {
	return prefix + SuffixFlushers
}

// KeyVersions 返回行版本映射的 Redis Key。
func KeyVersions() string {
	return prefix + SuffixVersions
}

// KeyDirects 返回控制表直接值的 Redis Key。
func KeyDirects() string {
	return prefix + SuffixDirects
}

// KeyUpdates 返回发布订阅更新通知的 Redis Stream Key。
func KeyUpdates() string {
	return prefix + SuffixUpdates
}

// KeyLock 返回填充 cacheKey 时使用的锁 Key。
func KeyLock(cacheKey string) string {
	return prefix + SuffixLock + cacheKey
}

// KeySnapshot 返回快照存储的 Redis Key。
func KeySnapshot(name string) string {
	return prefix + SuffixSnapshot + name
}

// Stream 事件类型
const (
	EventAdd     = "add"
	EventUpgrade = "upgrade"
	EventDirect  = "direct"
	EventRemove  = "remove"
)

// UpdateMessage 是 Redis Stream 消息载荷
type UpdateMessage struct {
	Event     string `json:"event"`     // 事件类型
	CacheKey  string `json:"cache_key"` // 变化的行
	Timestamp int64  `json:"timestamp"` // 时间戳
}
