package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrEnumeration 表示后端无法给出来源列表，整个查询随之失败
	ErrEnumeration = errors.New("capture: enumerate sources")
	// ErrCaptureFailed 表示单个来源捕获失败，调用方应跳过该来源
	ErrCaptureFailed = errors.New("capture: capture failed")
	// ErrMinimized 表示窗口已最小化，未调用后端
	ErrMinimized = errors.New("capture: window is minimized")
)

// CaptureError 记录失败的来源及原因；errors.Is 总能匹配 ErrCaptureFailed。
type CaptureError struct {
	Source Source
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

func (e *CaptureError) Is(target error) bool {
	return target == ErrCaptureFailed
}
