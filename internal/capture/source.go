package capture

import "fmt"

// Kind 标记 Source 是显示器还是窗口
type Kind uint8

const (
	KindMonitor Kind = iota + 1
	KindWindow
)

func (k Kind) String() string {
	switch k {
	case KindMonitor:
		return "monitor"
	case KindWindow:
		return "window"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Source 描述一个可捕获的表面（显示器或窗口）。
//
// ID 只在一次枚举内稳定，不能跨调用复用。Minimized 仅对窗口有意义。
type Source struct {
	Kind      Kind   `json:"kind" msgpack:"kind"`
	ID        uint32 `json:"id" msgpack:"id"`
	Name      string `json:"name" msgpack:"name"`
	X         int32  `json:"x" msgpack:"x"`
	Y         int32  `json:"y" msgpack:"y"`
	Width     uint32 `json:"w" msgpack:"w"`
	Height    uint32 `json:"h" msgpack:"h"`
	Minimized bool   `json:"minimized,omitempty" msgpack:"minimized,omitempty"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s %d (%q)", s.Kind, s.ID, s.Name)
}
