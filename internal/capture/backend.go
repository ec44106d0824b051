package capture

import "image"

// Backend 是操作系统捕获能力的边界：列出来源、捕获单个来源。
type Backend interface {
	Monitors() ([]Source, error)
	Windows() ([]Source, error)
	Capture(src Source) (*image.RGBA, error)
}

// Focuser 由能够查询真实输入焦点的后端实现。返回 0 表示没有焦点窗口。
type Focuser interface {
	FocusedWindow() (uint32, error)
}
