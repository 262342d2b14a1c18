package westcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixValueCache_LoadOnce(t *testing.T) {
	c := NewPrefixValueCache()
	ctx := context.Background()

	var loads atomic.Int32
	load := func(ctx context.Context) (map[string]string, bool, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return map[string]string{"JiangSu": "XXX", "JiangXi": "YYY"}, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, ok, err := c.Lookup(ctx, "P", "JiangSu", load)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "XXX", raw)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())

	raw, ok, err := c.Lookup(ctx, "P", "JiangXi", load)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "YYY", raw)

	_, ok, err = c.Lookup(ctx, "P", "Beijing", load)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), loads.Load())
}

func TestPrefixValueCache_Invalidate(t *testing.T) {
	c := NewPrefixValueCache()
	ctx := context.Background()

	value := "v1"
	load := func(ctx context.Context) (map[string]string, bool, error) {
		return map[string]string{"a": value}, true, nil
	}

	raw, _, _ := c.Lookup(ctx, "P", "a", load)
	assert.Equal(t, "v1", raw)

	value = "v2"
	raw, _, _ = c.Lookup(ctx, "P", "a", load)
	assert.Equal(t, "v1", raw, "cached until invalidated")

	c.Invalidate("P")
	raw, _, _ = c.Lookup(ctx, "P", "a", load)
	assert.Equal(t, "v2", raw)
	assert.Equal(t, []string{"P"}, c.Keys())

	c.Clear()
	assert.Empty(t, c.Keys())
}

func TestPrefixValueCache_AbsentIsCached(t *testing.T) {
	c := NewPrefixValueCache()
	var loads atomic.Int32
	load := func(ctx context.Context) (map[string]string, bool, error) {
		loads.Add(1)
		return nil, false, nil
	}
	for i := 0; i < 3; i++ {
		_, ok, err := c.Lookup(context.Background(), "P", "a", load)
		assert.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, int32(1), loads.Load())
}

func TestPrefixValueCache_ErrorNotCached(t *testing.T) {
	c := NewPrefixValueCache()
	fail := true
	load := func(ctx context.Context) (map[string]string, bool, error) {
		if fail {
			return nil, false, errors.New("boom")
		}
		return map[string]string{"a": "1"}, true, nil
	}

	_, _, err := c.Lookup(context.Background(), "P", "a", load)
	assert.Error(t, err)

	fail = false
	raw, ok, err := c.Lookup(context.Background(), "P", "a", load)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", raw)
}

func TestPrefixValueCache_InvalidateDuringLoad(t *testing.T) {
	c := NewPrefixValueCache()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context) (map[string]string, bool, error) {
		close(started)
		<-release
		return map[string]string{"a": "stale"}, true, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		raw, _, _ := c.Lookup(ctx, "P", "a", slow)
		assert.Equal(t, "stale", raw)
	}()

	<-started
	c.Invalidate("P")
	close(release)
	<-done

	// 失效之后写回的旧结果被丢弃
	assert.Empty(t, c.Keys())
}
