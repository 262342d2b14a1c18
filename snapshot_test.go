package westcache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

var snapshotBeans = []FlusherBean{fullBean("getUser", 3), directPrefix("getCities")}

func TestFileSnapshotStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewFileSnapshotStore(dir)

	_, found, err := store.ReadSnapshot(ctx, "getUser.tableflushers")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveSnapshot(ctx, "getUser.tableflushers", snapshotBeans))
	beans, found, err := store.ReadSnapshot(ctx, "getUser.tableflushers")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snapshotBeans, beans)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSnapshotStore_Tampered(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileSnapshotStore(dir)
	require.NoError(t, store.SaveSnapshot(ctx, "s", snapshotBeans))

	path := filepath.Join(dir, "s")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec snapshotRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	rec.Beans[0].ValueVersion = 99
	data, err = json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, found, err := store.ReadSnapshot(ctx, "s")
	assert.ErrorContains(t, err, "fingerprint mismatch")
	assert.False(t, found)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, _, err = store.ReadSnapshot(ctx, "s")
	assert.Error(t, err)
}

func TestFileSnapshotStore_NestedNamesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileSnapshotStore(dir)

	require.NoError(t, store.SaveSnapshot(ctx, SnapshotName("a/get"), []FlusherBean{fullBean("a/get", 1)}))
	_, found, err := store.ReadSnapshot(ctx, SnapshotName("b/get"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveSnapshot(ctx, SnapshotName("b/get"), []FlusherBean{fullBean("b/get", 2)}))
	beans, found, err := store.ReadSnapshot(ctx, SnapshotName("a/get"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []FlusherBean{fullBean("a/get", 1)}, beans)

	require.NoError(t, store.SaveSnapshot(ctx, "..", snapshotBeans))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRedisSnapshotStore(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	store := NewRedisSnapshotStore(rdb)

	_, found, err := store.ReadSnapshot(ctx, "s")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveSnapshot(ctx, "s", snapshotBeans))
	assert.True(t, mr.Exists(KeySnapshot("s")))

	beans, found, err := store.ReadSnapshot(ctx, "s")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snapshotBeans, beans)

	bad, err := msgpack.Marshal(snapshotRecord{Name: "s", Fingerprint: "0", Beans: snapshotBeans})
	require.NoError(t, err)
	require.NoError(t, mr.Set(KeySnapshot("s"), string(bad)))
	_, _, err = store.ReadSnapshot(ctx, "s")
	assert.ErrorContains(t, err, "fingerprint mismatch")
}

type mockObjectClient struct {
	mock.Mock
}

func (m *mockObjectClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if obj, ok := args.Get(0).(io.ReadCloser); ok {
		return obj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockObjectClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func TestMinioSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := new(mockObjectClient)
	store := NewMinioSnapshotStore(client, "westcache", "snapshots")

	var saved []byte
	client.On("PutObject", ctx, "westcache", "snapshots/s.json", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			data, err := io.ReadAll(args.Get(3).(io.Reader))
			require.NoError(t, err)
			saved = data
			assert.Equal(t, int64(len(data)), args.Get(4).(int64))
		}).
		Return(minio.UploadInfo{}, nil).Once()
	require.NoError(t, store.SaveSnapshot(ctx, "s", snapshotBeans))

	client.On("GetObject", ctx, "westcache", "snapshots/s.json", mock.Anything).
		Return(io.NopCloser(bytes.NewReader(saved)), nil).Once()
	beans, found, err := store.ReadSnapshot(ctx, "s")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snapshotBeans, beans)

	client.AssertExpectations(t)
}

func TestMinioSnapshotStore_Missing(t *testing.T) {
	ctx := context.Background()
	client := new(mockObjectClient)
	store := NewMinioSnapshotStore(client, "westcache", "")

	client.On("GetObject", ctx, "westcache", "s.json", mock.Anything).
		Return(nil, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}).Once()
	_, found, err := store.ReadSnapshot(ctx, "s")
	require.NoError(t, err)
	assert.False(t, found)

	client.On("GetObject", ctx, "westcache", "s.json", mock.Anything).
		Return(nil, errors.New("network down")).Once()
	_, _, err = store.ReadSnapshot(ctx, "s")
	assert.ErrorContains(t, err, "network down")

	client.On("PutObject", ctx, "westcache", "s.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("access denied")).Once()
	assert.ErrorContains(t, store.SaveSnapshot(ctx, "s", nil), "access denied")

	client.AssertExpectations(t)
}
