package capture

import (
	"fmt"
	"image"
)

// SystemBackend 组合本机的捕获能力：显示器走 kbinani/screenshot，窗口走 X11。
type SystemBackend struct {
	Screen ScreenBackend
	X11    X11Backend
}

// NewSystemBackend 返回默认的本机后端；display 为空时使用 $DISPLAY
func NewSystemBackend(display string) *SystemBackend {
	return &SystemBackend{X11: X11Backend{Display: display}}
}

func (b *SystemBackend) Monitors() ([]Source, error) { return b.Screen.Monitors() }

func (b *SystemBackend) Windows() ([]Source, error) { return b.X11.Windows() }

func (b *SystemBackend) Capture(src Source) (*image.RGBA, error) {
	switch src.Kind {
	case KindMonitor:
		return b.Screen.Capture(src)
	case KindWindow:
		return b.X11.Capture(src)
	default:
		return nil, fmt.Errorf("unknown source kind %s", src.Kind)
	}
}

func (b *SystemBackend) FocusedWindow() (uint32, error) { return b.X11.FocusedWindow() }
