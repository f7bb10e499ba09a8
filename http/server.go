// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pubclass/monitoring"
)

// Server HTTP服务器
type Server struct {
	server  *http.Server
	handler http.Handler
	config  ServerConfig
	logger  *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8000,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"http://localhost:3000", "http://frontend:3000"},
	}
}

// Deps are the collaborators behind the routes. Journal, Metrics and Hub are
// optional; their routes degrade or disappear when nil.
type Deps struct {
	Service ClassificationService
	Journal Journal
	Metrics *monitoring.Metrics
	Hub     *monitoring.Hub
	Logger  *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	registerHandlers(mux, &api{
		svc:     deps.Service,
		journal: deps.Journal,
		metrics: deps.Metrics,
		hub:     deps.Hub,
		logger:  log,
	})

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(log),                    // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(log),                      // 2. 日志中间件
		SecurityHeadersMiddleware,                  // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),      // 4. CORS中间件
		RequestSizeMiddleware(config.MaxBodyBytes), // 5. 请求大小限制
		TimeoutMiddleware(config.RequestTimeout),   // 6. 超时中间件
	)
	handler := chain(mux)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:           handler,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
		handler: handler,
		config:  config,
		logger:  log,
	}
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start 启动服务器. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
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
