package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/qiniu/go-sdk/v7/auth/qbox"
	qstorage "github.com/qiniu/go-sdk/v7/storage"

	"screencapture/internal/config"
)

// Qiniu 通过表单上传写入七牛空间
type Qiniu struct {
	mac      *qbox.Mac
	bucket   string
	domain   string
	uploader *qstorage.FormUploader
}

func NewQiniu(cfg config.Qiniu) (*Qiniu, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, errors.New("qiniu access_key, secret_key and bucket are required")
	}
	qcfg := &qstorage.Config{UseHTTPS: cfg.UseHTTPS}
	return &Qiniu{
		mac:      qbox.NewMac(cfg.AccessKey, cfg.SecretKey),
		bucket:   cfg.Bucket,
		domain:   cfg.Domain,
		uploader: qstorage.NewFormUploader(qcfg),
	}, nil
}

// Put 每次生成覆盖上传凭证，返回公开访问地址（未配置域名时返回 bucket:key）
func (q *Qiniu) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	policy := qstorage.PutPolicy{Scope: q.bucket + ":" + key}
	token := policy.UploadToken(q.mac)
	var ret qstorage.PutRet
	extra := &qstorage.PutExtra{MimeType: contentType}
	if err := q.uploader.Put(ctx, &ret, token, key, bytes.NewReader(data), int64(len(data)), extra); err != nil {
		return "", fmt.Errorf("qiniu put %s: %w", key, err)
	}
	if q.domain == "" {
		return q.bucket + ":" + ret.Key, nil
	}
	return qstorage.MakePublicURL(q.domain, ret.Key), nil
}
