package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 支持 yaml 配置文件 + 环境变量（前缀 SCREENCAPTURE_，层级用 _ 分隔）
type Config struct {
	Log       Log       `mapstructure:"log"`
	Encode    Encode    `mapstructure:"encode"`
	Agent     Agent     `mapstructure:"agent"`
	Collector Collector `mapstructure:"collector"`
	Storage   Storage   `mapstructure:"storage"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Encode struct {
	// 第一遍通用编码质量
	BaseQuality int `mapstructure:"base_quality"`
	// 高效压缩器质量
	Quality          int `mapstructure:"quality"`
	ThumbnailDivisor int `mapstructure:"thumbnail_divisor"`
}

type Agent struct {
	ServerAddr        string        `mapstructure:"server_addr"`
	DeviceID          string        `mapstructure:"device_id"`
	EnrollmentCode    string        `mapstructure:"enrollment_code"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	// X11 display，空则使用 $DISPLAY
	Display string `mapstructure:"display"`
}

type Collector struct {
	TCPAddr        string        `mapstructure:"tcp_addr"`
	HTTPAddr       string        `mapstructure:"http_addr"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	AdminToken     string        `mapstructure:"admin_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type Storage struct {
	Driver   string `mapstructure:"driver"`
	LocalDir string `mapstructure:"local_dir"`
	Qiniu    Qiniu  `mapstructure:"qiniu"`
	S3       S3     `mapstructure:"s3"`
}

type Qiniu struct {
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	// 绑定的下载域名，用于生成对象地址
	Domain   string `mapstructure:"domain"`
	UseHTTPS bool   `mapstructure:"use_https"`
}

type S3 struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("encode.base_quality", 95)
	v.SetDefault("encode.quality", 75)
	v.SetDefault("encode.thumbnail_divisor", 8)
	v.SetDefault("agent.server_addr", "127.0.0.1:12345")
	v.SetDefault("agent.device_id", "")
	v.SetDefault("agent.enrollment_code", "")
	v.SetDefault("agent.reconnect_interval", 5*time.Second)
	v.SetDefault("agent.display", "")
	v.SetDefault("collector.tcp_addr", ":12345")
	v.SetDefault("collector.http_addr", ":8848")
	v.SetDefault("collector.sqlite_path", "data/screencapture.db")
	v.SetDefault("collector.admin_token", "")
	v.SetDefault("collector.request_timeout", 30*time.Second)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "data/captures")
	for _, k := range []string{
		"storage.qiniu.access_key", "storage.qiniu.secret_key", "storage.qiniu.bucket", "storage.qiniu.domain",
		"storage.s3.bucket", "storage.s3.region", "storage.s3.endpoint",
		"storage.s3.access_key_id", "storage.s3.secret_access_key", "storage.s3.session_token",
	} {
		v.SetDefault(k, "")
	}
	v.SetDefault("storage.qiniu.use_https", true)
}

// Load 读取配置。path 为空时按优先级查找 screencapture.yaml：
// 1) SCREENCAPTURE_CONFIG 指定的文件；
// 2) 工作目录；
// 3) 可执行文件所在目录；
// 4) 用户配置目录下 screencapture/。
// 找不到文件时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SCREENCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("SCREENCAPTURE_CONFIG"))
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("screencapture")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "screencapture"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Encode.BaseQuality < 1 || c.Encode.BaseQuality > 100 {
		return fmt.Errorf("encode.base_quality must be 1-100, got %d", c.Encode.BaseQuality)
	}
	if c.Encode.Quality < 1 || c.Encode.Quality > 100 {
		return fmt.Errorf("encode.quality must be 1-100, got %d", c.Encode.Quality)
	}
	if c.Encode.ThumbnailDivisor < 1 {
		return fmt.Errorf("encode.thumbnail_divisor must be positive, got %d", c.Encode.ThumbnailDivisor)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "local", "qiniu", "s3":
	default:
		return fmt.Errorf("storage.driver %q is not one of local, qiniu, s3", c.Storage.Driver)
	}
	if c.Collector.RequestTimeout <= 0 {
		return errors.New("collector.request_timeout must be positive")
	}
	return nil
}

// Masked 返回用于启动日志的配置摘要，密钥只显示是否设置
func (c *Config) Masked() map[string]any {
	set := func(s string) string {
		if s == "" {
			return "empty"
		}
		return "set"
	}
	return map[string]any{
		"storage":           c.Storage.Driver,
		"sqlite":            c.Collector.SQLitePath,
		"admin":             set(c.Collector.AdminToken),
		"qiniu_secret":      set(c.Storage.Qiniu.SecretKey),
		"s3_secret":         set(c.Storage.S3.SecretAccessKey),
		"enrollment_code":   set(c.Agent.EnrollmentCode),
		"thumbnail_divisor": c.Encode.ThumbnailDivisor,
	}
}
