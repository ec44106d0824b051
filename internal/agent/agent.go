package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"screencapture/internal/config"
	"screencapture/internal/protocol"
)

// ErrRejected 表示 collector 拒绝了认证，此时不再重连。
// collector 侧的临时故障（5xx）不算拒绝，按间隔重连。
var ErrRejected = errors.New("agent: rejected by collector")

// Agent 连接 collector，循环接收查询请求并返回结果。
type Agent struct {
	cfg      config.Agent
	handler  Handler
	log      *zap.Logger
	deviceID string
}

func New(cfg config.Agent, q Queries, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	id := cfg.DeviceID
	if id == "" {
		id = resolveDeviceID(log)
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Agent{
		cfg:      cfg,
		handler:  Handler{Queries: q},
		log:      log.With(zap.String("device_id", id)),
		deviceID: id,
	}
}

func (a *Agent) DeviceID() string { return a.deviceID }

// Run 连接并服务，断线后按间隔重连，直到 ctx 结束或认证被拒绝
func (a *Agent) Run(ctx context.Context) error {
	for {
		err := a.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		a.log.Warn("collector session ended", zap.Error(err), zap.Duration("retry_in", a.cfg.ReconnectInterval))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.cfg.ReconnectInterval):
		}
	}
}

func (a *Agent) connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", a.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.cfg.ServerAddr, err)
	}
	defer conn.Close()
	return a.Serve(ctx, conn)
}

// Serve 在已建立的连接上完成认证并处理请求，直到连接关闭
func (a *Agent) Serve(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := a.authenticate(conn); err != nil {
		return err
	}
	a.log.Info("connected to collector", zap.String("addr", conn.RemoteAddr().String()))

	for {
		var req protocol.Request
		if err := protocol.ReadMessage(conn, &req); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("connection closed by collector")
			}
			return fmt.Errorf("read request: %w", err)
		}
		start := time.Now()
		resp := a.handler.Handle(req)
		a.log.Debug("handled request",
			zap.String("op", req.Op),
			zap.Int("code", resp.Code),
			zap.Bool("found", resp.Found),
			zap.Duration("took", time.Since(start)))
		if resp.Code != protocol.CodeOK {
			a.log.Warn("request failed", zap.String("op", req.Op), zap.String("error", resp.Error))
		}
		if err := protocol.WriteMessage(conn, resp); err != nil {
			return fmt.Errorf("send response: %w", err)
		}
	}
}

func (a *Agent) authenticate(conn net.Conn) error {
	req := protocol.AuthRequest{
		EnrollmentCode: a.cfg.EnrollmentCode,
		DeviceID:       a.deviceID,
	}
	if info, err := host.Info(); err == nil {
		req.Hostname = info.Hostname
		req.Platform = info.Platform
	} else {
		a.log.Debug("host info unavailable", zap.Error(err))
	}
	if err := protocol.WriteMessage(conn, req); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var resp protocol.AuthResponse
	if err := protocol.ReadMessage(conn, &resp); err != nil {
		return fmt.Errorf("read auth: %w", err)
	}
	switch resp.Code {
	case protocol.CodeOK:
		return nil
	case protocol.CodeBadRequest, protocol.CodeUnauthorized:
		return fmt.Errorf("%w: %d %s", ErrRejected, resp.Code, resp.Error)
	default:
		return fmt.Errorf("auth failed on collector: %d %s", resp.Code, resp.Error)
	}
}
