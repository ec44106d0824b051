package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local 把对象写入本地目录
type Local struct {
	BasePath string
}

func NewLocal(dir string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage.local_dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve local dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create local dir: %w", err)
	}
	return &Local{BasePath: abs}, nil
}

func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest, err := containedPath(l.BasePath, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	// 先写临时文件再改名，读者不会看到半截文件
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit object: %w", err)
	}
	return dest, nil
}

// containedPath 保证 key 解析后仍在 base 目录内
func containedPath(base, key string) (string, error) {
	if key == "" {
		return "", errors.New("object key is required")
	}
	joined := filepath.Join(base, filepath.FromSlash(key))
	if !strings.HasPrefix(joined, base+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes %q", key, base)
	}
	return joined, nil
}
