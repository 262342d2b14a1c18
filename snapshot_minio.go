package westcache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectClient 是快照存储需要的对象存储操作。
type ObjectClient interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectStoreConfig 是对象存储连接配置。
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// NewObjectClient 创建 minio 客户端。
func NewObjectClient(cfg ObjectStoreConfig) (ObjectClient, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create minio client")
	}
	return &minioObjectClient{Client: client}, nil
}

type minioObjectClient struct {
	*minio.Client
}

func (c *minioObjectClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.Client.GetObject(ctx, bucketName, objectName, opts)
}

// MinioSnapshotStore 把快照保存为对象存储中的 JSON 对象 <prefix>/<name>.json。
type MinioSnapshotStore struct {
	client ObjectClient
	bucket string
	prefix string
}

var _ SnapshotStore = (*MinioSnapshotStore)(nil)

// NewMinioSnapshotStore 创建对象存储快照。
func NewMinioSnapshotStore(client ObjectClient, bucket, prefix string) *MinioSnapshotStore {
	return &MinioSnapshotStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinioSnapshotStore) objectName(name string) string {
	return path.Join(s.prefix, name+".json")
}

func (s *MinioSnapshotStore) ReadSnapshot(ctx context.Context, name string) ([]FlusherBean, bool, error) {
	obj := s.objectName(name)
	reader, err := s.client.GetObject(ctx, s.bucket, obj, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "get snapshot object %q", obj)
	}
	defer reader.Close()

	// minio 的 GetObject 是延迟请求，对象不存在的错误在读取时才出现
	data, err := io.ReadAll(reader)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "read snapshot object %q", obj)
	}

	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, errors.Wrapf(err, "decode snapshot %q", name)
	}
	if err := rec.verify(); err != nil {
		return nil, false, err
	}
	return rec.Beans, true, nil
}

func (s *MinioSnapshotStore) SaveSnapshot(ctx context.Context, name string, beans []FlusherBean) error {
	data, err := json.Marshal(newSnapshotRecord(name, beans))
	if err != nil {
		return errors.Wrapf(err, "encode snapshot %q", name)
	}
	obj := s.objectName(name)
	_, err = s.client.PutObject(ctx, s.bucket, obj, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return errors.Wrapf(err, "put snapshot object %q", obj)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
