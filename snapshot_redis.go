package westcache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisSnapshotStore 把快照以 msgpack 保存在 KeySnapshot(name)。
type RedisSnapshotStore struct {
	rdb redis.Cmdable
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)

func NewRedisSnapshotStore(rdb redis.Cmdable) *RedisSnapshotStore {
	return &RedisSnapshotStore{rdb: rdb}
}

func (s *RedisSnapshotStore) ReadSnapshot(ctx context.Context, name string) ([]FlusherBean, bool, error) {
	data, err := s.rdb.Get(ctx, KeySnapshot(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get snapshot %q", name)
	}

	var rec snapshotRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, false, errors.Wrapf(err, "decode snapshot %q", name)
	}
	if err := rec.verify(); err != nil {
		return nil, false, err
	}
	return rec.Beans, true, nil
}

func (s *RedisSnapshotStore) SaveSnapshot(ctx context.Context, name string, beans []FlusherBean) error {
	data, err := msgpack.Marshal(newSnapshotRecord(name, beans))
	if err != nil {
		return errors.Wrapf(err, "encode snapshot %q", name)
	}
	if err := s.rdb.Set(ctx, KeySnapshot(name), data, 0).Err(); err != nil {
		return errors.Wrapf(err, "set snapshot %q", name)
	}
	return nil
}
