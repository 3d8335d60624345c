package server

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/shengyanli1982/orbit"
	"github.com/shengyanli1982/ratelimit-go/internal/config"
)

// AdminServer 代表管理服务器，提供健康检查、监控指标和桶管理功能
type AdminServer struct {
	endpoint   string               // 服务器监听地址
	httpEngine *orbit.Engine        // HTTP 引擎实例
	closeOnce  sync.Once            // 确保只关闭一次
	config     *config.ServerConfig // 监听配置
	logger     *logr.Logger         // 日志记录器
	service    *AdminService        // 管理服务实例
}

// NewAdminServer 创建新的管理服务器实例
// debug: 是否启用调试模式
// cfg: 监听配置
// deps: 运行时组件
func NewAdminServer(debug bool, cfg *config.ServerConfig, deps Dependencies) *AdminServer {
	deps = deps.withDefaults()
	endpoint := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)

	// /metrics 和 /health 由管理服务自行注册
	engine := orbit.NewEngine(newEngineConfig(debug, cfg, deps.Logger), orbit.EmptyOptions())

	svc := NewAdminService(deps)
	engine.RegisterService(svc)

	return &AdminServer{
		endpoint:   endpoint,
		httpEngine: engine,
		config:     cfg,
		logger:     deps.Logger,
		service:    svc,
	}
}

// Start 启动管理服务器
func (s *AdminServer) Start() {
	if s.httpEngine.IsRunning() {
		s.logger.Error(ErrServerAlreadyStarted, "Admin server is already started")
		return
	}

	s.logger.Info("Starting admin server", "endpoint", s.endpoint)

	s.service.Run()
	s.httpEngine.Run()

	// 重置关闭标志
	s.closeOnce = sync.Once{}

	s.logger.Info("Admin server started successfully", "endpoint", s.endpoint)
}

// Stop 停止管理服务器
func (s *AdminServer) Stop() {
	if !s.httpEngine.IsRunning() {
		s.logger.Info("Admin server is not running")
		return
	}

	s.logger.Info("Stopping admin server", "endpoint", s.endpoint)

	s.closeOnce.Do(func() {
		s.httpEngine.Stop()
		s.service.Stop()

		s.logger.Info("Admin server stopped successfully", "endpoint", s.endpoint)
	})
}

// IsRunning 检查管理服务器是否正在运行
func (s *AdminServer) IsRunning() bool {
	return s.httpEngine.IsRunning()
}

// GetEndpoint 获取服务器监听地址
func (s *AdminServer) GetEndpoint() string {
	return s.endpoint
}

// GetService 获取管理服务实例
func (s *AdminServer) GetService() *AdminService {
	return s.service
}
