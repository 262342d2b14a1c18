package westcache

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// SnapshotStore 持久化最近一次的控制表，用于在首次轮询过慢时尽快放行启动。
type SnapshotStore interface {
	ReadSnapshot(ctx context.Context, name string) ([]FlusherBean, bool, error)
	SaveSnapshot(ctx context.Context, name string, beans []FlusherBean) error
}

// snapshotRecord 是快照的持久化格式。
type snapshotRecord struct {
	Name        string        `json:"name" msgpack:"name"`
	Fingerprint string        `json:"fingerprint" msgpack:"fingerprint"`
	SavedAt     time.Time     `json:"savedAt" msgpack:"savedAt"`
	Beans       []FlusherBean `json:"beans" msgpack:"beans"`
}

func newSnapshotRecord(name string, beans []FlusherBean) snapshotRecord {
	return snapshotRecord{
		Name:        name,
		Fingerprint: FingerprintBeans(beans),
		SavedAt:     time.Now().UTC(),
		Beans:       beans,
	}
}

// verify 检查记录的指纹，防止读到被截断或手工改坏的快照。
func (r snapshotRecord) verify() error {
	if got := FingerprintBeans(r.Beans); got != r.Fingerprint {
		return errors.Newf("snapshot %q fingerprint mismatch: %s != %s", r.Name, got, r.Fingerprint)
	}
	return nil
}

// FileSnapshotStore 把快照保存为目录下的 JSON 文件，文件名为快照名称。
type FileSnapshotStore struct {
	dir string
}

var _ SnapshotStore = (*FileSnapshotStore)(nil)

// NewFileSnapshotStore 创建文件快照存储，目录不存在时在第一次保存时创建。
func NewFileSnapshotStore(dir string) *FileSnapshotStore {
	return &FileSnapshotStore{dir: dir}
}

// path 把快照名称转义为单个文件名，不同目录形式的名称不会落到同一个文件。
func (s *FileSnapshotStore) path(name string) string {
	file := url.PathEscape(name)
	if file == "." || file == ".." {
		file = strings.ReplaceAll(file, ".", "%2E")
	}
	return filepath.Join(s.dir, file)
}

func (s *FileSnapshotStore) ReadSnapshot(ctx context.Context, name string) ([]FlusherBean, bool, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "read snapshot %q", name)
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

// SaveSnapshot 先写临时文件再重命名，读者不会看到写了一半的快照。
func (s *FileSnapshotStore) SaveSnapshot(ctx context.Context, name string, beans []FlusherBean) error {
	data, err := json.MarshalIndent(newSnapshotRecord(name, beans), "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode snapshot %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create snapshot dir %q", s.dir)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(s.path(name))+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write snapshot %q", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close snapshot %q", name)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return errors.Wrapf(err, "rename snapshot %q", name)
	}
	return nil
}
