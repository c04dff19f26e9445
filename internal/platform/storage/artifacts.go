package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"foodcal-server-go/internal/platform/errors"
)

// ArtifactStore 为每次请求生成唯一命名的临时文件，供上传到视觉模型使用
type ArtifactStore struct {
	dir string
}

// NewArtifactStore ensures the artifact directory exists.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.new", "创建临时目录失败", err)
	}
	return &ArtifactStore{dir: dir}, nil
}

func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Save writes data to <dir>/<uuid><ext> and returns the path.
func (s *ArtifactStore) Save(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(errors.KindStorage, "storage.save", "请求已取消", err)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	path := filepath.Join(s.dir, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", errors.Wrap(errors.KindStorage, "storage.save", "创建临时文件失败", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", errors.Wrap(errors.KindStorage, "storage.save", "写入临时文件失败", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", errors.Wrap(errors.KindStorage, "storage.save", "关闭临时文件失败", err)
	}
	return path, nil
}

// Remove deletes an artifact. Missing files are not an error.
func (s *ArtifactStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.dir)+string(filepath.Separator)) {
		return errors.New(errors.KindStorage, "storage.remove", fmt.Sprintf("路径不在临时目录内: %s", path))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.KindStorage, "storage.remove", "删除临时文件失败", err)
	}
	return nil
}
