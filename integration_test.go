package westcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestIntegration(t *testing.T) {
	// 1. 初始化 Redis 和控制表
	mr, rdb := newTestRedis(t)
	SetPrefix("testapp")
	t.Cleanup(func() { SetPrefix("westcache:") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table := NewRedisTable(rdb)
	require.NoError(t, table.AddBean(ctx, fullBean("getUser", 1), nil))
	require.NoError(t, table.AddBean(ctx, directPrefix("getCities"), []byte(`{"JiangSu":"XXX"}`)))

	// 2. 组装引擎：控制表直接值 + Redis 快照
	log := zaptest.NewLogger(t)
	registries := NewRegistries()
	registries.Snapshots.RegisterForcely(DefaultName, NewRedisSnapshotStore(rdb))
	snapshots, ok := registries.Snapshots.Get("")
	require.True(t, ok)

	values := NewValueCache()
	f, err := NewTableFlusher(table, values,
		WithLogger(log),
		WithRotateInterval(time.Hour),
		WithStopPollInterval(5*time.Millisecond),
		WithSnapshotStore(snapshots),
		WithDirectValueSource(&SpecDirectSource{Table: table, Loaders: registries.Loaders}),
	)
	require.NoError(t, err)
	require.NoError(t, registries.Flushers.Register(DefaultName, f))
	cache := NewCache(values, f, log)

	// 3. 首次读取启动引擎
	var calls atomic.Int32
	compute := func(ctx context.Context) (int32, error) { return calls.Add(1), nil }
	v, err := Get(ctx, cache, "getUser", compute)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)
	city, err := Get(ctx, cache, "getCities_JiangSu", func(ctx context.Context) (string, error) { return "", nil })
	require.NoError(t, err)
	assert.Equal(t, "XXX", city)
	assert.True(t, mr.Exists("testapp:snapshot:getUser.tableflushers"))

	// 4. 启动监听器
	watchDone := make(chan error, 1)
	go func() { watchDone <- f.Watch(ctx, rdb) }()
	time.Sleep(100 * time.Millisecond) // 等待监听器启动

	// 5. 修改控制表，无需等待定时轮询
	require.NoError(t, table.UpgradeVersion(ctx, "getUser"))
	require.NoError(t, table.UpdateDirectValue(ctx, "getCities", []byte(`{"JiangSu":"AAA"}`)))

	assert.Eventually(t, func() bool {
		_, cached := values.Peek("getUser")
		_, cityCached := values.Peek("getCities_JiangSu")
		return !cached && !cityCached
	}, 3*time.Second, 10*time.Millisecond)

	v, err = Get(ctx, cache, "getUser", compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
	city, err = Get(ctx, cache, "getCities_JiangSu", func(ctx context.Context) (string, error) { return "", nil })
	require.NoError(t, err)
	assert.Equal(t, "AAA", city)

	// 6. 停止
	cancel()
	select {
	case err := <-watchDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
	f.Close()
	assert.Equal(t, StateIdle, f.State())
}
