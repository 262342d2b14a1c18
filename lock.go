package westcache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockOptions 配置尽力而为的 Redis 锁。
type LockOptions struct {
	TTL     time.Duration // 锁的过期时间，持有者崩溃后自动释放
	Retries int           // 获取失败后的重试次数
	Backoff time.Duration // 两次重试之间的固定间隔
}

// DefaultLockOptions 返回默认锁配置。
func DefaultLockOptions() LockOptions {
	return LockOptions{
		TTL:     10 * time.Second,
		Retries: 10,
		Backoff: 50 * time.Millisecond,
	}
}

// 只有令牌匹配时才删除，避免释放已过期后被别人获得的锁
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lock 是一次成功获取的锁。
type Lock struct {
	rdb   redis.Cmdable
	key   string
	token string
}

// TryLock 尝试获取 key 上的锁。
// 使用 SET NX PX 非阻塞获取，失败后按固定间隔重试 opts.Retries 次；
// 仍然失败时返回 ok=false，调用方应继续执行（不保证互斥，只减少重复工作）。
func TryLock(ctx context.Context, rdb redis.Cmdable, key string, opts LockOptions) (*Lock, bool, error) {
	token := uuid.NewString()
	for attempt := 0; ; attempt++ {
		ok, err := rdb.SetNX(ctx, key, token, opts.TTL).Result()
		if err != nil {
			return nil, false, errors.Wrapf(err, "acquire lock %q", key)
		}
		if ok {
			return &Lock{rdb: rdb, key: key, token: token}, true, nil
		}
		if attempt >= opts.Retries {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(opts.Backoff):
		}
	}
}

// Release 释放锁。锁已过期或被他人持有时什么都不做。
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return errors.Wrapf(err, "release lock %q", l.key)
	}
	return nil
}
