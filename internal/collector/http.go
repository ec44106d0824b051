package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"screencapture/internal/archive"
	"screencapture/internal/artifact"
	"screencapture/internal/protocol"
)

const adminTokenHeader = "X-Admin-Token"

// Handler 返回 collector 的 HTTP 路由
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/agents", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.agents.list())
	})

	ag := r.Group("/agents/:device")
	ag.GET("/monitors/count", s.handleCount)
	ag.POST("/monitors/:index/capture", s.handleCaptureScreen)
	ag.POST("/windows/:id/capture", s.handleCaptureWindow)
	ag.GET("/windows/active", s.handleWindowQuery(protocol.OpActiveWindow))
	ag.GET("/windows/focused", s.handleWindowQuery(protocol.OpFocusedWindow))

	r.GET("/captures", s.handleListCaptures)
	r.GET("/captures/:id/thumbnail", s.handleThumbnail)

	admin := r.Group("/enrollments", s.requireAdmin())
	admin.POST("", s.handleCreateEnrollment)
	admin.GET("", s.handleListEnrollments)
	admin.DELETE("/:code", s.handleRevokeEnrollment)
	admin.DELETE("/:code/binding", s.handleResetBinding)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// requireAdmin 未配置 admin_token 时管理接口整体关闭
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin api disabled"})
			return
		}
		if c.GetHeader(adminTokenHeader) != s.cfg.AdminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

// forward 把请求转给 agent，出错时已写好 HTTP 响应并返回 false
func (s *Server) forward(c *gin.Context, req protocol.Request) (protocol.Response, bool) {
	deviceID := c.Param("device")
	sess, ok := s.agents.get(deviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrAgentNotConnected.Error()})
		return protocol.Response{}, false
	}
	resp, err := sess.call(c.Request.Context(), req, s.cfg.RequestTimeout)
	if err != nil {
		s.log.Warn("agent call failed", zap.String("device_id", deviceID), zap.String("op", req.Op), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, ErrAgentTimeout) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return protocol.Response{}, false
	}
	switch resp.Code {
	case protocol.CodeOK:
		return resp, true
	case protocol.CodeBadRequest:
		c.JSON(http.StatusBadRequest, gin.H{"error": resp.Error})
	case protocol.CodeUnsupported:
		c.JSON(http.StatusNotImplemented, gin.H{"error": resp.Error})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": resp.Error})
	}
	return protocol.Response{}, false
}

func (s *Server) handleCount(c *gin.Context) {
	resp, ok := s.forward(c, protocol.Request{Op: protocol.OpCount})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": resp.Count})
}

func (s *Server) handleCaptureScreen(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non-negative integer"})
		return
	}
	s.captureAndStore(c, protocol.Request{Op: protocol.OpCaptureScreen, Index: index})
}

func (s *Server) handleCaptureWindow(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window id must be an unsigned 32-bit integer"})
		return
	}
	s.captureAndStore(c, protocol.Request{Op: protocol.OpCaptureWindow, WindowID: uint32(id)})
}

func (s *Server) captureAndStore(c *gin.Context, req protocol.Request) {
	resp, ok := s.forward(c, req)
	if !ok {
		return
	}
	if !resp.Found || resp.Artifact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no capturable source"})
		return
	}
	rec, err := s.persist(c.Request.Context(), c.Param("device"), resp.Artifact)
	if err != nil {
		s.log.Error("persist capture failed", zap.String("device_id", c.Param("device")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store capture"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// persist 原图写对象存储，元数据与缩略图写 sqlite
func (s *Server) persist(ctx context.Context, deviceID string, art *artifact.Artifact) (archive.Capture, error) {
	id := uuid.NewString()
	loc, err := s.store.Put(ctx, deviceID+"/"+id+".jpg", art.Image.Data, "image/jpeg")
	if err != nil {
		return archive.Capture{}, fmt.Errorf("store image: %w", err)
	}
	rec := archive.Capture{
		ID:         id,
		DeviceID:   deviceID,
		Kind:       art.Kind.String(),
		SourceID:   art.ID,
		Name:       art.Name,
		X:          art.X,
		Y:          art.Y,
		W:          art.W,
		H:          art.H,
		ImageSize:  len(art.Image.Data),
		Location:   loc,
		ThumbW:     art.Thumbnail.Width,
		ThumbH:     art.Thumbnail.Height,
		CapturedAt: time.Now().Unix(),
		Thumbnail:  art.Thumbnail.Data,
	}
	if err := s.archive.SaveCapture(rec); err != nil {
		return archive.Capture{}, err
	}
	return rec, nil
}

func (s *Server) handleWindowQuery(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, ok := s.forward(c, protocol.Request{Op: op})
		if !ok {
			return
		}
		if !resp.Found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no window"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"window_id": resp.WindowID})
	}
}

func (s *Server) handleListCaptures(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := s.archive.ListCaptures(c.Query("device"), limit)
	if err != nil {
		s.log.Error("list captures failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list captures"})
		return
	}
	if list == nil {
		list = []archive.Capture{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleThumbnail(c *gin.Context) {
	data, err := s.archive.Thumbnail(c.Param("id"))
	if errors.Is(err, archive.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "capture not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

type createEnrollmentRequest struct {
	TTL  string `json:"ttl"`
	Note string `json:"note"`
}

func (s *Server) handleCreateEnrollment(c *gin.Context) {
	var body createEnrollmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	var ttl time.Duration
	if body.TTL != "" {
		d, err := time.ParseDuration(body.TTL)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl must be a positive duration such as 24h"})
			return
		}
		ttl = d
	}
	e, err := s.archive.CreateEnrollment(ttl, body.Note)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) handleListEnrollments(c *gin.Context) {
	list, err := s.archive.ListEnrollments()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []archive.Enrollment{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleRevokeEnrollment(c *gin.Context) {
	s.enrollmentUpdate(c, s.archive.RevokeEnrollment, "revoked")
}

func (s *Server) handleResetBinding(c *gin.Context) {
	s.enrollmentUpdate(c, s.archive.ResetBinding, "unbound")
}

func (s *Server) enrollmentUpdate(c *gin.Context, fn func(string) error, status string) {
	err := fn(c.Param("code"))
	if errors.Is(err, archive.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
