package capture

import "fmt"

// Registry 枚举可捕获的来源。返回顺序由后端决定，只在本次枚举内有效。
type Registry struct {
	backend Backend
}

func NewRegistry(b Backend) *Registry { return &Registry{backend: b} }

// ListMonitors 列出显示器；后端失败时整体返回 ErrEnumeration
func (r *Registry) ListMonitors() ([]Source, error) {
	srcs, err := r.backend.Monitors()
	if err != nil {
		return nil, fmt.Errorf("%w: monitors: %v", ErrEnumeration, err)
	}
	return tag(srcs, KindMonitor), nil
}

// ListWindows 列出窗口；后端失败时整体返回 ErrEnumeration
func (r *Registry) ListWindows() ([]Source, error) {
	srcs, err := r.backend.Windows()
	if err != nil {
		return nil, fmt.Errorf("%w: windows: %v", ErrEnumeration, err)
	}
	return tag(srcs, KindWindow), nil
}

// tag 返回带 Kind 的副本，不修改后端持有的切片
func tag(srcs []Source, k Kind) []Source {
	out := make([]Source, len(srcs))
	for i, src := range srcs {
		src.Kind = k
		if k == KindMonitor {
			src.Minimized = false
		}
		out[i] = src
	}
	return out
}
