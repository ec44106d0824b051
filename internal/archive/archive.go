package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("archive: not found")
	ErrRevoked        = errors.New("archive: enrollment revoked")
	ErrExpired        = errors.New("archive: enrollment expired")
	ErrBoundElsewhere = errors.New("archive: enrollment bound to another device")
)

// Archive 持有 collector 的 sqlite 数据库：注册码与捕获记录
type Archive struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库并初始化表结构
func Open(path string) (*Archive, error) {
	if strings.TrimSpace(path) == "" {
		path = "data/screencapture.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc 驱动下单连接避免 database is locked
	db.SetMaxOpenConns(1)
	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS enrollments (
			id INTEGER PRIMARY KEY,
			code_hash TEXT UNIQUE NOT NULL,
			code_plain TEXT,
			exp_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			revoked INTEGER NOT NULL DEFAULT 0,
			device_id TEXT,
			hostname TEXT,
			bound_at INTEGER,
			last_seen_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_device_id ON enrollments(device_id);`,
		`CREATE TABLE IF NOT EXISTS captures (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			source_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			w INTEGER NOT NULL,
			h INTEGER NOT NULL,
			image_size INTEGER NOT NULL,
			location TEXT NOT NULL,
			thumbnail BLOB NOT NULL,
			thumb_w INTEGER NOT NULL,
			thumb_h INTEGER NOT NULL,
			captured_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_captures_device ON captures(device_id, captured_at);`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
