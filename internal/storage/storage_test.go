package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"screencapture/internal/config"
)

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), config.Storage{Driver: "local", LocalDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	data := []byte{0xff, 0xd8, 0xff, 0xd9}
	loc, err := store.Put(context.Background(), "dev-1/a.jpg", data, "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if loc != filepath.Join(dir, "dev-1", "a.jpg") {
		t.Fatalf("location = %s", loc)
	}
	got, err := os.ReadFile(loc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("content = %v", got)
	}
	if _, err := os.Stat(loc + ".part"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestLocalRejectsEscapingKey(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../x.jpg", "a/../../x.jpg"} {
		if _, err := store.Put(context.Background(), key, []byte{1}, ""); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  config.Storage
	}{
		{"unknown driver", config.Storage{Driver: "ftp"}},
		{"local without dir", config.Storage{Driver: "local"}},
		{"qiniu without keys", config.Storage{Driver: "qiniu", Qiniu: config.Qiniu{Bucket: "b"}}},
		{"s3 without region", config.Storage{Driver: "s3", S3: config.S3{Bucket: "b"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(ctx, tc.cfg); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestNewRemoteDrivers(t *testing.T) {
	q, err := New(context.Background(), config.Storage{Driver: "qiniu", Qiniu: config.Qiniu{AccessKey: "ak", SecretKey: "sk", Bucket: "shots"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := q.(*Qiniu); !ok {
		t.Fatalf("got %T", q)
	}
	s, err := New(context.Background(), config.Storage{Driver: "S3", S3: config.S3{
		Bucket: "shots", Region: "us-east-1", Endpoint: "http://127.0.0.1:9000",
		AccessKeyID: "id", SecretAccessKey: "secret",
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*S3); !ok {
		t.Fatalf("got %T", s)
	}
}
