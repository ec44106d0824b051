package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"screencapture/internal/archive"
	"screencapture/internal/config"
	"screencapture/internal/storage"
)

// Server 接收 agent 的 TCP 连接，并通过 HTTP API 向已连接的 agent 下发查询
type Server struct {
	cfg     config.Collector
	archive *archive.Archive
	store   storage.ObjectStore
	log     *zap.Logger
	agents  *registry
}

func New(cfg config.Collector, arch *archive.Archive, store storage.ObjectStore, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Server{
		cfg:     cfg,
		archive: arch,
		store:   store,
		log:     log,
		agents:  newRegistry(),
	}
}

// Run 并行启动 TCP 与 HTTP 服务，ctx 结束时两者一起退出
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", s.cfg.TCPAddr, err)
	}
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("tcp server listening", zap.String("addr", ln.Addr().String()))
		return s.serveTCP(ctx, ln)
	})
	g.Go(func() error {
		s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = ln.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.agents.closeAll()
		return err
	})
	return g.Wait()
}
