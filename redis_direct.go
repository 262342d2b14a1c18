package westcache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDirectSource 从 Redis 读取直接值 (readBy=redis)。
// Full 行读取字符串 KeyDirect(cacheKey)，Prefix 行读取同名 Hash。
// 值不存在且行配置了 loader 时，在尽力而为的锁下用 Loader 加载并回填，
// 过期时间取 expireAfterWrite。
type RedisDirectSource struct {
	rdb     redis.Cmdable
	loaders *Registry[Loader]
	lock    LockOptions
	log     *zap.Logger
}

var _ DirectValueSource = (*RedisDirectSource)(nil)

// NewRedisDirectSource 创建 Redis 直接值来源。loaders 可以为 nil，此时不回填。
func NewRedisDirectSource(rdb redis.Cmdable, loaders *Registry[Loader], logger *zap.Logger) *RedisDirectSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDirectSource{
		rdb:     rdb,
		loaders: loaders,
		lock:    DefaultLockOptions(),
		log:     logger.Named("westcache.redis"),
	}
}

// WithLockOptions 替换锁配置。
func (s *RedisDirectSource) WithLockOptions(opts LockOptions) *RedisDirectSource {
	s.lock = opts
	return s
}

func (s *RedisDirectSource) ReadDirectValue(ctx context.Context, bean FlusherBean, kind DirectValueKind) (DirectValue, error) {
	dv, err := s.read(ctx, bean, kind)
	if err != nil || dv.Found {
		return dv, err
	}

	specs := ParseSpecs(bean.Specs)
	if s.loaders == nil || specs.Get(SpecLoader) == "" {
		return dv, nil
	}
	return s.populate(ctx, bean, kind, specs)
}

func (s *RedisDirectSource) read(ctx context.Context, bean FlusherBean, kind DirectValueKind) (DirectValue, error) {
	key := KeyDirect(bean.CacheKey)
	if kind == DirectSub {
		m, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return DirectValue{}, errors.Wrapf(err, "hgetall %q", key)
		}
		if len(m) == 0 {
			return DirectValue{}, nil
		}
		return DirectValue{Sub: m, Found: true}, nil
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return DirectValue{}, nil
	}
	if err != nil {
		return DirectValue{}, errors.Wrapf(err, "get %q", key)
	}
	return DirectValue{Raw: raw, Found: true}, nil
}

// populate 加锁后再读一次，仍然没有才调用 Loader 并写回 Redis。
// 拿不到锁时照常加载，可能与其他进程重复回填。
func (s *RedisDirectSource) populate(ctx context.Context, bean FlusherBean, kind DirectValueKind, specs Specs) (DirectValue, error) {
	lock, locked, err := TryLock(ctx, s.rdb, KeyLock(bean.CacheKey), s.lock)
	if err != nil {
		s.log.Warn("lock failed, loading without it", zap.String("cacheKey", bean.CacheKey), zap.Error(err))
	}
	if locked {
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("release lock failed", zap.String("cacheKey", bean.CacheKey), zap.Error(err))
			}
		}()
		dv, err := s.read(ctx, bean, kind)
		if err != nil || dv.Found {
			return dv, err
		}
	}

	dv, err := loadDirect(ctx, s.loaders, specs, bean, kind)
	if err != nil || !dv.Found {
		return dv, err
	}

	ttl, _, err := specs.Duration(SpecExpireAfterWrite)
	if err != nil {
		return DirectValue{}, err
	}
	if err := s.write(ctx, bean.CacheKey, dv, kind, ttl); err != nil {
		// 回填失败不影响本次读取
		s.log.Warn("write back direct value failed", zap.String("cacheKey", bean.CacheKey), zap.Error(err))
	}
	return dv, nil
}

func (s *RedisDirectSource) write(ctx context.Context, cacheKey string, dv DirectValue, kind DirectValueKind, ttl time.Duration) error {
	key := KeyDirect(cacheKey)
	if kind == DirectFull {
		return s.rdb.Set(ctx, key, dv.Raw, ttl).Err()
	}
	if len(dv.Sub) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		fields := make(map[string]any, len(dv.Sub))
		for k, v := range dv.Sub {
			fields[k] = v
		}
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}
