package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SCREENCAPTURE_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Encode.BaseQuality != 95 || cfg.Encode.ThumbnailDivisor != 8 {
		t.Fatalf("encode defaults = %+v", cfg.Encode)
	}
	if cfg.Collector.TCPAddr != ":12345" || cfg.Collector.HTTPAddr != ":8848" {
		t.Fatalf("collector defaults = %+v", cfg.Collector)
	}
	if cfg.Agent.ReconnectInterval != 5*time.Second {
		t.Fatalf("reconnect = %v", cfg.Agent.ReconnectInterval)
	}
	if cfg.Storage.Driver != "local" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screencapture.yaml")
	yaml := `
log:
  level: debug
encode:
  quality: 60
collector:
  admin_token: secret
  request_timeout: 10s
storage:
  driver: s3
  s3:
    bucket: shots
    region: us-east-1
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCREENCAPTURE_AGENT_SERVER_ADDR", "collector:9000")
	t.Setenv("SCREENCAPTURE_ENCODE_QUALITY", "70")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("level = %q", cfg.Log.Level)
	}
	if cfg.Encode.Quality != 70 {
		t.Fatalf("env should override file, quality = %d", cfg.Encode.Quality)
	}
	if cfg.Agent.ServerAddr != "collector:9000" {
		t.Fatalf("server addr = %q", cfg.Agent.ServerAddr)
	}
	if cfg.Collector.RequestTimeout != 10*time.Second {
		t.Fatalf("timeout = %v", cfg.Collector.RequestTimeout)
	}
	if cfg.Storage.S3.Bucket != "shots" || cfg.Storage.S3.Region != "us-east-1" {
		t.Fatalf("s3 = %+v", cfg.Storage.S3)
	}
	if cfg.Masked()["admin"] != "set" {
		t.Fatalf("masked = %v", cfg.Masked())
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Encode:    Encode{BaseQuality: 95, Quality: 75, ThumbnailDivisor: 8},
			Collector: Collector{RequestTimeout: time.Second},
			Storage:   Storage{Driver: "local"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"base quality", func(c *Config) { c.Encode.BaseQuality = 101 }},
		{"quality", func(c *Config) { c.Encode.Quality = 0 }},
		{"divisor", func(c *Config) { c.Encode.ThumbnailDivisor = 0 }},
		{"driver", func(c *Config) { c.Storage.Driver = "ftp" }},
		{"timeout", func(c *Config) { c.Collector.RequestTimeout = 0 }},
	}
	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
