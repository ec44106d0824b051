package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"screencapture/internal/artifact"
)

// MaxFrameSize 单帧上限，防止对端发送异常长度导致大内存分配
const MaxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("protocol: frame too large")

// 请求操作
const (
	OpCount         = "count"
	OpCaptureScreen = "capture_screen"
	OpCaptureWindow = "capture_window"
	OpActiveWindow  = "active_window"
	OpFocusedWindow = "focused_window"
)

// 响应码
const (
	CodeOK           = 200
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeFailed       = 500
	CodeUnsupported  = 501
)

// AuthRequest 为 agent 首次连接时的认证请求
type AuthRequest struct {
	EnrollmentCode string `msgpack:"enrollment_code"`
	DeviceID       string `msgpack:"device_id"`
	Hostname       string `msgpack:"hostname"`
	Platform       string `msgpack:"platform"`
}

// AuthResponse 为 collector 返回的认证结果
type AuthResponse struct {
	Code  int    `msgpack:"code"`
	Error string `msgpack:"error"`
}

// Request 为 collector 下发给 agent 的查询
type Request struct {
	Op       string `msgpack:"op"`
	Index    int    `msgpack:"index,omitempty"`
	WindowID uint32 `msgpack:"window_id,omitempty"`
}

// Response 为 agent 上报的查询结果；Found=false 表示未找到，不是错误
type Response struct {
	Code     int                `msgpack:"code"`
	Error    string             `msgpack:"error,omitempty"`
	Found    bool               `msgpack:"found"`
	Count    int                `msgpack:"count,omitempty"`
	WindowID uint32             `msgpack:"window_id,omitempty"`
	Artifact *artifact.Artifact `msgpack:"artifact,omitempty"`
}

// SendWithLengthPrefix 按 4 字节大端长度前缀发送
func SendWithLengthPrefix(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadWithLengthPrefix 读取 4 字节大端长度前缀帧
func ReadWithLengthPrefix(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteMessage 以 msgpack 编码 v 并按帧发送
func WriteMessage(w io.Writer, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return SendWithLengthPrefix(w, b)
}

// ReadMessage 读取一帧并解码到 v
func ReadMessage(r io.Reader, v any) error {
	b, err := ReadWithLengthPrefix(r)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}
