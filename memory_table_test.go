package westcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTable(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(fullBean("a", 1))

	require.NoError(t, table.AddBean(ctx, directFull("b"), []byte(`"v1"`)))
	assert.Error(t, table.AddBean(ctx, fullBean("a", 5), nil))

	beans, err := table.QueryAllBeans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []FlusherBean{fullBean("a", 1), directFull("b")}, beans)

	require.NoError(t, table.UpgradeVersion(ctx, "a"))
	require.NoError(t, table.UpdateDirectValue(ctx, "b", []byte(`"v2"`)))
	beans, err = table.QueryAllBeans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), beans[0].ValueVersion)
	assert.Equal(t, int64(2), beans[1].ValueVersion)

	dv, err := table.ReadDirectValue(ctx, beans[1], DirectFull)
	require.NoError(t, err)
	assert.Equal(t, `"v2"`, string(dv.Raw))

	dv, err = table.ReadDirectValue(ctx, beans[0], DirectFull)
	require.NoError(t, err)
	assert.False(t, dv.Found)

	require.NoError(t, table.RemoveBean(ctx, "a"))
	assert.ErrorIs(t, table.RemoveBean(ctx, "a"), ErrNotFound)
	assert.ErrorIs(t, table.UpgradeVersion(ctx, "a"), ErrNotFound)
	assert.ErrorIs(t, table.UpdateDirectValue(ctx, "a", nil), ErrNotFound)

	beans, err = table.QueryAllBeans(ctx)
	require.NoError(t, err)
	assert.Len(t, beans, 1)
}

func TestMemoryTable_QueryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(fullBean("a", 1))
	beans, err := table.QueryAllBeans(ctx)
	require.NoError(t, err)
	beans[0].ValueVersion = 99

	again, err := table.QueryAllBeans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again[0].ValueVersion)
}
