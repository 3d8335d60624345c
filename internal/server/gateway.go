package server

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/shengyanli1982/orbit"
	"github.com/shengyanli1982/ratelimit-go/internal/config"
)

// GatewayServer 代表网关服务器，对配置的路由执行限流并可选地转发到上游
type GatewayServer struct {
	endpoint   string               // 服务器监听地址
	httpEngine *orbit.Engine        // HTTP 引擎实例
	closeOnce  sync.Once            // 确保只关闭一次
	config     *config.ServerConfig // 监听配置
	logger     *logr.Logger         // 日志记录器
	service    *GatewayService      // 网关服务实例
}

// NewGatewayServer 创建新的网关服务器实例
// debug: 是否启用调试模式
// cfg: 监听配置
// routes: 网关路由
// deps: 运行时组件
func NewGatewayServer(debug bool, cfg *config.ServerConfig, routes []config.RouteConfig, deps Dependencies) (*GatewayServer, error) {
	deps = deps.withDefaults()

	svc, err := NewGatewayService(routes, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gateway service: %w", err)
	}

	endpoint := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)

	// 网关只暴露业务路由
	engine := orbit.NewEngine(newEngineConfig(debug, cfg, deps.Logger), orbit.EmptyOptions())
	engine.RegisterService(svc)

	return &GatewayServer{
		endpoint:   endpoint,
		httpEngine: engine,
		config:     cfg,
		logger:     deps.Logger,
		service:    svc,
	}, nil
}

// Start 启动网关服务器
func (s *GatewayServer) Start() {
	if s.httpEngine.IsRunning() {
		s.logger.Error(ErrServerAlreadyStarted, "Gateway server is already started")
		return
	}

	s.logger.Info("Starting gateway server", "endpoint", s.endpoint, "routes", len(s.service.Routes()))

	s.service.Run()
	s.httpEngine.Run()

	// 重置关闭标志
	s.closeOnce = sync.Once{}

	s.logger.Info("Gateway server started successfully", "endpoint", s.endpoint)
}

// Stop 停止网关服务器
func (s *GatewayServer) Stop() {
	if !s.httpEngine.IsRunning() {
		s.logger.Info("Gateway server is not running")
		return
	}

	s.logger.Info("Stopping gateway server", "endpoint", s.endpoint)

	s.closeOnce.Do(func() {
		s.httpEngine.Stop()
		s.service.Stop()

		s.logger.Info("Gateway server stopped successfully", "endpoint", s.endpoint)
	})
}

// IsRunning 检查网关服务器是否正在运行
func (s *GatewayServer) IsRunning() bool {
	return s.httpEngine.IsRunning()
}

// GetEndpoint 获取服务器监听地址
func (s *GatewayServer) GetEndpoint() string {
	return s.endpoint
}

// GetService 获取网关服务实例
func (s *GatewayServer) GetService() *GatewayService {
	return s.service
}
