package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

const deviceIDFile = "device_id"

// resolveDeviceID 在未配置 device_id 时给出跨重启稳定的 id：
// 优先用户配置目录下持久化的 uuid，其次主机 HostID，最后才临时生成。
func resolveDeviceID(log *zap.Logger) string {
	if dir, err := os.UserConfigDir(); err == nil {
		id, err := loadDeviceID(filepath.Join(dir, "screencapture"))
		if err == nil {
			return id
		}
		log.Warn("persist device id failed", zap.Error(err))
	}
	if info, err := host.Info(); err == nil && info.HostID != "" {
		return info.HostID
	}
	log.Warn("no stable device id available, enrollment will not survive restart")
	return uuid.NewString()
}

// loadDeviceID 读取 dir 下保存的 id，不存在时生成并写入
func loadDeviceID(dir string) (string, error) {
	path := filepath.Join(dir, deviceIDFile)
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read device id: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}
