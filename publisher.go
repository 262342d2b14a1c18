package westcache

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisTable 是保存在 Redis 中的控制表。
//
// 行保存在 KeyFlushers (CacheKey -> Bean JSON)，版本单独保存在 KeyVersions 以便原子递增，
// 直接值保存在 KeyDirects。每次修改都在同一个脚本里向 KeyUpdates 追加一条通知，
// Watch 据此立即触发轮询。
type RedisTable struct {
	rdb redis.Cmdable
}

var _ TableAdmin = (*RedisTable)(nil)

// NewRedisTable 创建 Redis 控制表。
// client: Redis 客户端实例（外部传入，DI）。
func NewRedisTable(client redis.Cmdable) *RedisTable {
	return &RedisTable{rdb: client}
}

var addScript = redis.NewScript(`
local flushersKey = KEYS[1]
local versionsKey = KEYS[2]
local directsKey = KEYS[3]
local streamKey = KEYS[4]

local cacheKey = ARGV[1]

if redis.call('HSETNX', flushersKey, cacheKey, ARGV[2]) == 0 then
	return 0
end
redis.call('HSET', versionsKey, cacheKey, ARGV[3])
if ARGV[4] == '1' then
	redis.call('HSET', directsKey, cacheKey, ARGV[5])
end
redis.call('XADD', streamKey, 'MAXLEN', '~', '1000', '*', 'data', ARGV[6])
return 1
`)

var bumpScript = redis.NewScript(`
local flushersKey = KEYS[1]
local versionsKey = KEYS[2]
local directsKey = KEYS[3]
local streamKey = KEYS[4]

local cacheKey = ARGV[1]

if redis.call('HEXISTS', flushersKey, cacheKey) == 0 then
	return -1
end
if ARGV[2] == '1' then
	redis.call('HSET', directsKey, cacheKey, ARGV[3])
end
local version = redis.call('HINCRBY', versionsKey, cacheKey, 1)
redis.call('XADD', streamKey, 'MAXLEN', '~', '1000', '*', 'data', ARGV[4])
return version
`)

var removeScript = redis.NewScript(`
local cacheKey = ARGV[1]

if redis.call('HDEL', KEYS[1], cacheKey) == 0 then
	return 0
end
redis.call('HDEL', KEYS[2], cacheKey)
redis.call('HDEL', KEYS[3], cacheKey)
redis.call('XADD', KEYS[4], 'MAXLEN', '~', '1000', '*', 'data', ARGV[2])
return 1
`)

func tableKeys() []string {
	return []string{KeyFlushers(), KeyVersions(), KeyDirects(), KeyUpdates()}
}

func updateMessage(event, cacheKey string) string {
	data, _ := json.Marshal(UpdateMessage{
		Event:     event,
		CacheKey:  cacheKey,
		Timestamp: time.Now().Unix(),
	})
	return string(data)
}

// QueryAllBeans 返回按 CacheKey 排序的所有行。
func (t *RedisTable) QueryAllBeans(ctx context.Context) ([]FlusherBean, error) {
	var flushers, versions *redis.MapStringStringCmd
	_, err := t.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		flushers = pipe.HGetAll(ctx, KeyFlushers())
		versions = pipe.HGetAll(ctx, KeyVersions())
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load flusher beans")
	}

	vers := versions.Val()
	beans := make([]FlusherBean, 0, len(flushers.Val()))
	for k, v := range flushers.Val() {
		var b FlusherBean
		if err := json.Unmarshal([]byte(v), &b); err != nil {
			return nil, errors.Wrapf(err, "unmarshal flusher bean %s", k)
		}
		if raw, ok := vers[k]; ok {
			ver, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parse version of %s", k)
			}
			b.ValueVersion = ver
		}
		beans = append(beans, b)
	}
	slices.SortFunc(beans, func(a, b FlusherBean) int {
		return strings.Compare(a.CacheKey, b.CacheKey)
	})
	return beans, nil
}

func (t *RedisTable) ReadDirectValue(ctx context.Context, bean FlusherBean, kind DirectValueKind) (DirectValue, error) {
	raw, err := t.rdb.HGet(ctx, KeyDirects(), bean.CacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return DirectValue{}, nil
	}
	if err != nil {
		return DirectValue{}, errors.Wrapf(err, "get direct value %q", bean.CacheKey)
	}
	return tableDirectValue(raw, kind)
}

// AddBean 新增一行。行已存在时返回错误，不会覆盖。
func (t *RedisTable) AddBean(ctx context.Context, bean FlusherBean, value []byte) error {
	data, err := json.Marshal(bean)
	if err != nil {
		return errors.Wrapf(err, "marshal flusher bean %q", bean.CacheKey)
	}
	hasValue := "0"
	if value != nil {
		hasValue = "1"
	}
	added, err := addScript.Run(ctx, t.rdb, tableKeys(),
		bean.CacheKey,
		string(data),
		bean.ValueVersion,
		hasValue,
		string(value),
		updateMessage(EventAdd, bean.CacheKey),
	).Int()
	if err != nil {
		return errors.Wrapf(err, "add %q", bean.CacheKey)
	}
	if added == 0 {
		return errors.Newf("flusher bean %q already exists", bean.CacheKey)
	}
	return nil
}

func (t *RedisTable) UpgradeVersion(ctx context.Context, cacheKey string) error {
	return t.bump(ctx, cacheKey, EventUpgrade, nil)
}

func (t *RedisTable) UpdateDirectValue(ctx context.Context, cacheKey string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return t.bump(ctx, cacheKey, EventDirect, value)
}

func (t *RedisTable) bump(ctx context.Context, cacheKey, event string, value []byte) error {
	setValue := "0"
	if value != nil {
		setValue = "1"
	}
	ver, err := bumpScript.Run(ctx, t.rdb, tableKeys(),
		cacheKey,
		setValue,
		string(value),
		updateMessage(event, cacheKey),
	).Int64()
	if err != nil {
		return errors.Wrapf(err, "%s %q", event, cacheKey)
	}
	if ver < 0 {
		return errors.Wrapf(ErrNotFound, "%s %q", event, cacheKey)
	}
	return nil
}

func (t *RedisTable) RemoveBean(ctx context.Context, cacheKey string) error {
	removed, err := removeScript.Run(ctx, t.rdb, tableKeys(),
		cacheKey,
		updateMessage(EventRemove, cacheKey),
	).Int()
	if err != nil {
		return errors.Wrapf(err, "remove %q", cacheKey)
	}
	if removed == 0 {
		return errors.Wrapf(ErrNotFound, "remove %q", cacheKey)
	}
	return nil
}
