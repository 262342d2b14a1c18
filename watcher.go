package westcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WatchBlock 是每次 XREAD 的最长阻塞时间。
const WatchBlock = 5 * time.Second

// Watch 监听 RedisTable 的更新通知，收到后立即轮询控制表，
// 不必等到下一次定时轮询。引擎尚未启动时忽略通知。
// 它是阻塞的，应在 goroutine 中运行，ctx 取消时返回。
func (f *TableFlusher) Watch(ctx context.Context, rdb redis.Cmdable) error {
	// 使用 $ 只读取新消息
	lastID := "$"
	streamKey := KeyUpdates()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, lastID},
			Block:   WatchBlock,
			Count:   16,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("watch updates failed", zap.Error(err))
			// 退避等待，防止死循环刷日志
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(WatchBlock):
				continue
			}
		}

		changed := false
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}
				var update UpdateMessage
				if err := json.Unmarshal([]byte(data), &update); err != nil {
					f.log.Warn("bad update message", zap.String("id", msg.ID), zap.Error(err))
					continue
				}
				f.log.Debug("control table updated",
					zap.String("event", update.Event),
					zap.String("cacheKey", update.CacheKey))
				changed = true
			}
		}
		if !changed {
			continue
		}

		// 一批通知只需要一次轮询
		if err := f.Refresh(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
			f.log.Error("refresh after update failed", zap.Error(err))
		}
	}
}
