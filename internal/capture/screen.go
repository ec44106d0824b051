package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ScreenBackend 通过 kbinani/screenshot 枚举并捕获显示器。
// 显示器 ID 即显示器序号。
type ScreenBackend struct{}

func (ScreenBackend) Monitors() ([]Source, error) {
	n := screenshot.NumActiveDisplays()
	out := make([]Source, 0, n)
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		out = append(out, Source{
			Kind:   KindMonitor,
			ID:     uint32(i),
			Name:   fmt.Sprintf("Display %d", i),
			X:      int32(b.Min.X),
			Y:      int32(b.Min.Y),
			Width:  uint32(b.Dx()),
			Height: uint32(b.Dy()),
		})
	}
	return out, nil
}

func (ScreenBackend) Windows() ([]Source, error) {
	return nil, errors.New("screen backend does not enumerate windows")
}

// Capture 按显示器当前的边界截图；边界以捕获时为准，避免分辨率变化后越界。
func (ScreenBackend) Capture(src Source) (*image.RGBA, error) {
	if src.Kind != KindMonitor {
		return nil, fmt.Errorf("screen backend cannot capture %s", src.Kind)
	}
	idx := int(src.ID)
	if idx >= screenshot.NumActiveDisplays() {
		return nil, fmt.Errorf("display %d is gone", idx)
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(idx))
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return img, nil
}
