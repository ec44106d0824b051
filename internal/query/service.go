package query

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"screencapture/internal/artifact"
	"screencapture/internal/capture"
	"screencapture/internal/encode"
)

// ErrFocusUnsupported 表示后端无法查询真实的输入焦点
var ErrFocusUnsupported = errors.New("query: focus query not supported by backend")

// Encoder 是 Service 依赖的重编码能力，encode.Pipeline 满足此接口
type Encoder interface {
	Encode(f *capture.Frame) (encode.Pair, error)
}

// Service 实现对外的查询操作。每次调用都重新枚举，调用之间不保留任何状态；
// 返回的 bool 为 false 表示"未找到"，这是正常结果而不是错误。
// 只有枚举本身失败时才返回 error。
type Service struct {
	backend  capture.Backend
	registry *capture.Registry
	acquirer *capture.Acquirer
	encoder  Encoder
	log      *zap.Logger
}

func NewService(b capture.Backend, enc Encoder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		backend:  b,
		registry: capture.NewRegistry(b),
		acquirer: capture.NewAcquirer(b),
		encoder:  enc,
		log:      log,
	}
}

// CountSources 返回当前显示器数量
func (s *Service) CountSources() (int, error) {
	monitors, err := s.registry.ListMonitors()
	if err != nil {
		return 0, err
	}
	return len(monitors), nil
}

// CaptureByIndex 从第 n 个显示器开始依次尝试，返回第一个捕获与编码都成功的结果。
// 索引只在本次枚举内有意义，不要跨调用保存。
func (s *Service) CaptureByIndex(n int) (artifact.Artifact, bool, error) {
	monitors, err := s.registry.ListMonitors()
	if err != nil {
		return artifact.Artifact{}, false, err
	}
	if n < 0 || n >= len(monitors) {
		return artifact.Artifact{}, false, nil
	}
	for _, m := range monitors[n:] {
		art, err := s.captureOne(m)
		if err != nil {
			s.log.Debug("skip monitor", zap.Uint32("source_id", m.ID), zap.Int("index", n), zap.Error(err))
			continue
		}
		return art, true, nil
	}
	return artifact.Artifact{}, false, nil
}

// CaptureByID 捕获指定 id 的未最小化窗口。
// 捕获失败时继续查找同 id 的候选；编码失败则直接返回未找到。
func (s *Service) CaptureByID(id uint32) (artifact.Artifact, bool, error) {
	windows, err := s.registry.ListWindows()
	if err != nil {
		return artifact.Artifact{}, false, err
	}
	for _, w := range windows {
		if w.ID != id || w.Minimized {
			continue
		}
		frame, err := s.acquirer.Acquire(w)
		if err != nil {
			s.log.Debug("skip window", zap.Uint32("source_id", w.ID), zap.Error(err))
			continue
		}
		pair, err := s.encoder.Encode(frame)
		if err != nil {
			s.log.Warn("encode window failed", zap.Uint32("source_id", w.ID), zap.Error(err))
			return artifact.Artifact{}, false, nil
		}
		return artifact.Assemble(w, pair), true, nil
	}
	return artifact.Artifact{}, false, nil
}

// FindActiveWindow 返回第一个能被捕获的未最小化窗口。
// 这是以"可捕获"近似"活动"的启发式，并非系统焦点查询；需要真实焦点请用 FocusedWindow。
// 此操作只测试捕获能力，帧立即丢弃，不做编码。
func (s *Service) FindActiveWindow() (uint32, bool, error) {
	windows, err := s.registry.ListWindows()
	if err != nil {
		return 0, false, err
	}
	for _, w := range windows {
		if w.Minimized {
			continue
		}
		if _, err := s.acquirer.Acquire(w); err != nil {
			s.log.Debug("window not capturable", zap.Uint32("source_id", w.ID), zap.Error(err))
			continue
		}
		return w.ID, true, nil
	}
	return 0, false, nil
}

// FocusedWindow 向后端查询真实的输入焦点窗口
func (s *Service) FocusedWindow() (uint32, bool, error) {
	f, ok := s.backend.(capture.Focuser)
	if !ok {
		return 0, false, ErrFocusUnsupported
	}
	id, err := f.FocusedWindow()
	if err != nil {
		return 0, false, fmt.Errorf("focused window: %w", err)
	}
	return id, id != 0, nil
}

func (s *Service) captureOne(src capture.Source) (artifact.Artifact, error) {
	frame, err := s.acquirer.Acquire(src)
	if err != nil {
		return artifact.Artifact{}, err
	}
	pair, err := s.encoder.Encode(frame)
	if err != nil {
		return artifact.Artifact{}, err
	}
	return artifact.Assemble(src, pair), nil
}
