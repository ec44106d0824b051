package agent

import (
	"errors"
	"fmt"

	"screencapture/internal/artifact"
	"screencapture/internal/protocol"
	"screencapture/internal/query"
)

// Queries 是 Handler 需要的查询能力，query.Service 满足此接口
type Queries interface {
	CountSources() (int, error)
	CaptureByIndex(n int) (artifact.Artifact, bool, error)
	CaptureByID(id uint32) (artifact.Artifact, bool, error)
	FindActiveWindow() (uint32, bool, error)
	FocusedWindow() (uint32, bool, error)
}

// Handler 把协议请求映射到查询操作。
// 未找到返回 200 + Found=false；只有枚举失败才返回 500。
type Handler struct {
	Queries Queries
}

func (h Handler) Handle(req protocol.Request) protocol.Response {
	switch req.Op {
	case protocol.OpCount:
		n, err := h.Queries.CountSources()
		if err != nil {
			return failed(err)
		}
		return protocol.Response{Code: protocol.CodeOK, Found: true, Count: n}

	case protocol.OpCaptureScreen:
		if req.Index < 0 {
			return protocol.Response{Code: protocol.CodeBadRequest, Error: "index must be >= 0"}
		}
		art, ok, err := h.Queries.CaptureByIndex(req.Index)
		return artifactResponse(art, ok, err)

	case protocol.OpCaptureWindow:
		art, ok, err := h.Queries.CaptureByID(req.WindowID)
		return artifactResponse(art, ok, err)

	case protocol.OpActiveWindow:
		id, ok, err := h.Queries.FindActiveWindow()
		return windowResponse(id, ok, err)

	case protocol.OpFocusedWindow:
		id, ok, err := h.Queries.FocusedWindow()
		if errors.Is(err, query.ErrFocusUnsupported) {
			return protocol.Response{Code: protocol.CodeUnsupported, Error: err.Error()}
		}
		return windowResponse(id, ok, err)

	default:
		return protocol.Response{Code: protocol.CodeBadRequest, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func artifactResponse(art artifact.Artifact, ok bool, err error) protocol.Response {
	if err != nil {
		return failed(err)
	}
	if !ok {
		return protocol.Response{Code: protocol.CodeOK}
	}
	return protocol.Response{Code: protocol.CodeOK, Found: true, Artifact: &art}
}

func windowResponse(id uint32, ok bool, err error) protocol.Response {
	if err != nil {
		return failed(err)
	}
	if !ok {
		return protocol.Response{Code: protocol.CodeOK}
	}
	return protocol.Response{Code: protocol.CodeOK, Found: true, WindowID: id}
}

func failed(err error) protocol.Response {
	return protocol.Response{Code: protocol.CodeFailed, Error: err.Error()}
}
