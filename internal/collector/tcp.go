package collector

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"screencapture/internal/archive"
	"screencapture/internal/protocol"
)

const authTimeout = 10 * time.Second

func (s *Server) serveTCP(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn 完成认证后注册 agent，并阻塞到连接断开
func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log := s.log.With(zap.String("remote", remote))

	auth, err := s.authenticate(conn)
	if err != nil {
		log.Warn("agent auth failed", zap.Error(err))
		_ = conn.Close()
		return
	}

	sess := newSession(AgentInfo{
		DeviceID:    auth.DeviceID,
		Hostname:    auth.Hostname,
		Platform:    auth.Platform,
		Addr:        remote,
		ConnectedAt: time.Now().UTC(),
	}, conn)
	s.agents.add(sess)
	defer s.agents.remove(sess)
	log = log.With(zap.String("device_id", auth.DeviceID))
	log.Info("agent connected", zap.String("hostname", auth.Hostname), zap.String("platform", auth.Platform))

	err = sess.readLoop()
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		log.Info("agent disconnected")
	default:
		log.Warn("agent connection lost", zap.Error(err))
	}
}

func (s *Server) authenticate(conn net.Conn) (protocol.AuthRequest, error) {
	_ = conn.SetDeadline(time.Now().Add(authTimeout))
	defer conn.SetDeadline(time.Time{})

	var req protocol.AuthRequest
	if err := protocol.ReadMessage(conn, &req); err != nil {
		return req, err
	}
	if req.DeviceID == "" {
		sendAuthResponse(conn, protocol.CodeBadRequest, "device_id required")
		return req, errors.New("missing device_id")
	}
	if err := s.archive.Authenticate(req.EnrollmentCode, req.DeviceID, req.Hostname); err != nil {
		code := protocol.CodeUnauthorized
		if !isAuthRejection(err) {
			code = protocol.CodeFailed
		}
		sendAuthResponse(conn, code, err.Error())
		return req, err
	}
	sendAuthResponse(conn, protocol.CodeOK, "")
	return req, nil
}

func isAuthRejection(err error) bool {
	return errors.Is(err, archive.ErrNotFound) ||
		errors.Is(err, archive.ErrRevoked) ||
		errors.Is(err, archive.ErrExpired) ||
		errors.Is(err, archive.ErrBoundElsewhere)
}

func sendAuthResponse(conn net.Conn, code int, msg string) {
	_ = protocol.WriteMessage(conn, protocol.AuthResponse{Code: code, Error: msg})
}
