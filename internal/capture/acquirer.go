package capture

// Acquirer 向后端请求单个来源的原始帧，并把结果归类为成功或 CaptureError。
type Acquirer struct {
	backend Backend
}

func NewAcquirer(b Backend) *Acquirer { return &Acquirer{backend: b} }

// Acquire 捕获一个来源。已最小化的窗口直接拒绝，不会调用后端。
func (a *Acquirer) Acquire(src Source) (*Frame, error) {
	if src.Kind == KindWindow && src.Minimized {
		return nil, &CaptureError{Source: src, Err: ErrMinimized}
	}
	img, err := a.backend.Capture(src)
	if err != nil {
		return nil, &CaptureError{Source: src, Err: err}
	}
	f, err := FrameFromRGBA(img)
	if err != nil {
		return nil, &CaptureError{Source: src, Err: err}
	}
	return f, nil
}
