package storage

import (
	"context"
	"fmt"
	"strings"

	"screencapture/internal/config"
)

// ObjectStore 保存完整尺寸的 JPEG，返回可访问的位置（路径或 URL）
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// New 按 driver 选择存储后端
func New(ctx context.Context, cfg config.Storage) (ObjectStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "local":
		return NewLocal(cfg.LocalDir)
	case "qiniu":
		return NewQiniu(cfg.Qiniu)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
