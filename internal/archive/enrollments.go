package archive

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const enrollmentCodeLength = 12

// Enrollment 为一个 agent 注册码。首次使用时绑定到该设备，之后该设备可免码重连。
type Enrollment struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	ExpAt      int64  `json:"exp_at"`
	CreatedAt  int64  `json:"created_at"`
	Note       string `json:"note"`
	Revoked    bool   `json:"revoked"`
	DeviceID   string `json:"device_id,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	BoundAt    int64  `json:"bound_at,omitempty"`
	LastSeenAt int64  `json:"last_seen_at,omitempty"`
}

// CreateEnrollment 生成新的数字注册码，ttl<=0 时默认 24 小时
func (a *Archive) CreateEnrollment(ttl time.Duration, note string) (Enrollment, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now().Unix()
	expAt := now + int64(ttl/time.Second)
	for i := 0; i < 5; i++ {
		code, err := generateCode(enrollmentCodeLength)
		if err != nil {
			return Enrollment{}, err
		}
		res, err := a.db.Exec(
			"INSERT INTO enrollments (code_hash, code_plain, exp_at, created_at, note) VALUES (?, ?, ?, ?, ?)",
			hashCode(code), code, expAt, now, note,
		)
		if err == nil {
			id, _ := res.LastInsertId()
			return Enrollment{ID: id, Code: code, ExpAt: expAt, CreatedAt: now, Note: note}, nil
		}
		if !isUniqueConstraintError(err) {
			return Enrollment{}, fmt.Errorf("insert enrollment: %w", err)
		}
	}
	return Enrollment{}, errors.New("failed to generate unique enrollment code")
}

func (a *Archive) ListEnrollments() ([]Enrollment, error) {
	rows, err := a.db.Query(`SELECT id, code_plain, exp_at, created_at, note, revoked, device_id, hostname, bound_at, last_seen_at
		FROM enrollments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()
	var out []Enrollment
	for rows.Next() {
		var e Enrollment
		var revoked int
		var code, device, hostname sql.NullString
		var boundAt, lastSeen sql.NullInt64
		if err := rows.Scan(&e.ID, &code, &e.ExpAt, &e.CreatedAt, &e.Note, &revoked, &device, &hostname, &boundAt, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Code = code.String
		e.Revoked = revoked != 0
		e.DeviceID = device.String
		e.Hostname = hostname.String
		e.BoundAt = boundAt.Int64
		e.LastSeenAt = lastSeen.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

// RevokeEnrollment 吊销注册码，已绑定设备随之失效
func (a *Archive) RevokeEnrollment(code string) error {
	return a.updateByCode(code, "UPDATE enrollments SET revoked = 1 WHERE code_hash = ?")
}

// ResetBinding 解除设备绑定，使注册码可被新设备使用
func (a *Archive) ResetBinding(code string) error {
	return a.updateByCode(code, `UPDATE enrollments
		SET device_id = NULL, hostname = NULL, bound_at = NULL, last_seen_at = NULL
		WHERE code_hash = ?`)
}

func (a *Archive) updateByCode(code, stmt string) error {
	h := hashCode(code)
	if h == "" {
		return errors.New("enrollment code required")
	}
	res, err := a.db.Exec(stmt, h)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Authenticate 校验 agent：带码时绑定或核对设备，不带码时按已绑定设备放行
func (a *Archive) Authenticate(code, deviceID, hostname string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return errors.New("device_id required")
	}
	now := time.Now().Unix()
	if code = strings.TrimSpace(code); code != "" {
		return a.bindOrValidate(code, deviceID, hostname, now)
	}
	return a.validateDevice(deviceID, now)
}

func (a *Archive) bindOrValidate(code, deviceID, hostname string, now int64) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id, expAt int64
	var revoked int
	var bound sql.NullString
	err = tx.QueryRow("SELECT id, exp_at, revoked, device_id FROM enrollments WHERE code_hash = ?", hashCode(code)).
		Scan(&id, &expAt, &revoked, &bound)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("query enrollment: %w", err)
	case revoked != 0:
		return ErrRevoked
	case expAt <= now:
		return ErrExpired
	}

	switch {
	case bound.String == "":
		_, err = tx.Exec(`UPDATE enrollments SET device_id = ?, hostname = ?, bound_at = ?, last_seen_at = ?
			WHERE id = ? AND (device_id IS NULL OR device_id = '')`, deviceID, hostname, now, now, id)
	case bound.String != deviceID:
		return ErrBoundElsewhere
	default:
		_, err = tx.Exec("UPDATE enrollments SET last_seen_at = ?, hostname = ? WHERE id = ?", now, hostname, id)
	}
	if err != nil {
		return fmt.Errorf("bind device: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (a *Archive) validateDevice(deviceID string, now int64) error {
	var id int64
	err := a.db.QueryRow(`SELECT id FROM enrollments
		WHERE device_id = ? AND revoked = 0 AND exp_at > ?
		ORDER BY bound_at DESC LIMIT 1`, deviceID, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query by device: %w", err)
	}
	if _, err := a.db.Exec("UPDATE enrollments SET last_seen_at = ? WHERE id = ?", now, id); err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	return nil
}

func generateCode(length int) (string, error) {
	const digits = "0123456789"
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(digits)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("rand: %w", err)
		}
		b.WriteByte(digits[n.Int64()])
	}
	return b.String(), nil
}

func hashCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE")
}
