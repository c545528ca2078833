// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	// MaxBodyBytes 表单请求体上限
	MaxBodyBytes int64
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           5000,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultServerConfig().MaxBodyBytes
	}

	mux := http.NewServeMux()
	handlers.Register(mux)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(logger),                 // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(logger),                   // 2. 日志与指标中间件
		SecurityHeadersMiddleware,                  // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),      // 4. CORS中间件
		RequestSizeMiddleware(config.MaxBodyBytes), // 5. 请求体大小限制
	)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           chain(mux),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       config.Timeout,
			WriteTimeout:      config.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// Start 启动服务器，阻塞直到 Stop
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("feed", fmt.Sprintf("ws://localhost%s/ws/predictions", s.server.Addr)))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler 返回带中间件的根处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
