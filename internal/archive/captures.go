package archive

import (
	"database/sql"
	"errors"
	"fmt"
)

const defaultListLimit = 50

// Capture 为一次归档的捕获：元数据与缩略图存 sqlite，完整图片在对象存储中
type Capture struct {
	ID         string `json:"id"`
	DeviceID   string `json:"device_id"`
	Kind       string `json:"kind"`
	SourceID   uint32 `json:"source_id"`
	Name       string `json:"name"`
	X          int32  `json:"x"`
	Y          int32  `json:"y"`
	W          uint32 `json:"w"`
	H          uint32 `json:"h"`
	ImageSize  int    `json:"image_size"`
	Location   string `json:"location"`
	ThumbW     int    `json:"thumb_w"`
	ThumbH     int    `json:"thumb_h"`
	CapturedAt int64  `json:"captured_at"`

	Thumbnail []byte `json:"-"`
}

func (a *Archive) SaveCapture(c Capture) error {
	if c.ID == "" || c.DeviceID == "" {
		return errors.New("capture id and device_id required")
	}
	_, err := a.db.Exec(`INSERT INTO captures
		(id, device_id, kind, source_id, name, x, y, w, h, image_size, location, thumbnail, thumb_w, thumb_h, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DeviceID, c.Kind, c.SourceID, c.Name, c.X, c.Y, c.W, c.H,
		c.ImageSize, c.Location, c.Thumbnail, c.ThumbW, c.ThumbH, c.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// ListCaptures 按时间倒序列出捕获，deviceID 为空时列出全部
func (a *Archive) ListCaptures(deviceID string, limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const cols = `SELECT id, device_id, kind, source_id, name, x, y, w, h, image_size, location, thumb_w, thumb_h, captured_at FROM captures`
	var rows *sql.Rows
	var err error
	if deviceID == "" {
		rows, err = a.db.Query(cols+` ORDER BY captured_at DESC, id LIMIT ?`, limit)
	} else {
		rows, err = a.db.Query(cols+` WHERE device_id = ? ORDER BY captured_at DESC, id LIMIT ?`, deviceID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()
	var out []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.Kind, &c.SourceID, &c.Name, &c.X, &c.Y, &c.W, &c.H,
			&c.ImageSize, &c.Location, &c.ThumbW, &c.ThumbH, &c.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (a *Archive) Thumbnail(id string) ([]byte, error) {
	var data []byte
	err := a.db.QueryRow("SELECT thumbnail FROM captures WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query thumbnail: %w", err)
	}
	return data, nil
}
