package server

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shengyanli1982/ratelimit-go/internal/backend"
	"github.com/shengyanli1982/ratelimit-go/internal/breaker"
	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/metrics"
	"github.com/shengyanli1982/ratelimit-go/internal/ratelimit"
)

// KeyResetter 按存储键重置限流状态，返回键是否存在
type KeyResetter interface {
	Reset(ctx context.Context, key string) (bool, error)
}

// Dependencies 网关和管理服务共用的运行时组件
type Dependencies struct {
	// Checker 路由使用的限流器，通常是分布式限流器
	Checker ratelimit.Checker

	// Local 本地限流器，管理接口通过它查看和重置桶
	Local *ratelimit.Limiter

	// Resetter 管理接口重置单个键时使用，通常是分布式限流器，为 nil 时只重置本地桶
	Resetter KeyResetter

	// Backend 远程存储，未配置时为 nil
	Backend backend.Backend

	// Breaker 远程存储熔断器，可以为 nil
	Breaker breaker.CircuitBreaker

	Metrics  metrics.MetricsCollector
	Registry *prometheus.Registry
	Logger   *logr.Logger
}

// withDefaults 补全可选组件
func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		logger := logr.Discard()
		d.Logger = &logger
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNoopCollector()
	}
	if d.Local == nil {
		d.Local = ratelimit.NewLimiter(nil)
	}
	return d
}

// Server 代表主服务器，管理网关服务器和管理服务器
type Server struct {
	gateway *GatewayServer // 网关服务器实例
	admin   *AdminServer   // 管理服务器实例
	logger  *logr.Logger   // 日志记录器
}

// NewServer 创建新的服务器实例
// debug: 是否启用调试模式
// cfg: 完整配置
// deps: 运行时组件
func NewServer(debug bool, cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if deps.Checker == nil {
		return nil, ErrNilChecker
	}
	deps = deps.withDefaults()

	gateway, err := NewGatewayServer(debug, &cfg.HTTPServer.Gateway, cfg.Routes, deps)
	if err != nil {
		return nil, err
	}

	return &Server{
		gateway: gateway,
		admin:   NewAdminServer(debug, &cfg.HTTPServer.Admin, deps),
		logger:  deps.Logger,
	}, nil
}

// Start 启动所有服务器（网关服务器和管理服务器）
func (s *Server) Start() {
	s.logger.Info("Starting all servers")

	s.gateway.Start()
	s.admin.Start()
}

// Stop 停止所有服务器（网关服务器和管理服务器）
func (s *Server) Stop() {
	s.logger.Info("Stopping all servers")

	s.gateway.Stop()
	s.admin.Stop()
}

// Gateway 获取网关服务器实例
func (s *Server) Gateway() *GatewayServer {
	return s.gateway
}

// Admin 获取管理服务器实例
func (s *Server) Admin() *AdminServer {
	return s.admin
}
