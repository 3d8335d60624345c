package server

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shengyanli1982/ratelimit-go/internal/backend"
	"github.com/shengyanli1982/ratelimit-go/internal/breaker"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"github.com/shengyanli1982/ratelimit-go/internal/ratelimit"
	"github.com/shengyanli1982/ratelimit-go/internal/response"
)

// pingTimeout 管理接口访问远程存储的超时
const pingTimeout = 2 * time.Second

// 重置操作的作用范围
const (
	scopeLocal  = "local"
	scopeRemote = "local+remote"
)

// presetView 预置配置的展示形式
type presetView struct {
	Name     string            `json:"name"`
	Class    ratelimit.Class   `json:"class"`
	Requests int               `json:"requests"`
	Window   string            `json:"window"`
	KeyType  ratelimit.KeyType `json:"keyType"`
	Message  string            `json:"message,omitempty"`
}

// AdminService 代表管理服务，提供指标、健康检查和本地桶管理
type AdminService struct {
	mu        sync.RWMutex
	local     *ratelimit.Limiter
	resetter  KeyResetter
	backend   backend.Backend
	breaker   breaker.CircuitBreaker
	registry  *prometheus.Registry
	logger    *logr.Logger
	startTime time.Time
	running   bool
}

// NewAdminService 创建新的管理服务实例
func NewAdminService(deps Dependencies) *AdminService {
	deps = deps.withDefaults()

	return &AdminService{
		local:     deps.Local,
		resetter:  deps.Resetter,
		backend:   deps.Backend,
		breaker:   deps.Breaker,
		registry:  deps.Registry,
		logger:    deps.Logger,
		startTime: time.Now(),
	}
}

// RegisterGroup 注册路由组和处理器
func (s *AdminService) RegisterGroup(g *gin.RouterGroup) {
	g.GET("/metrics", s.handleMetrics)
	g.GET("/health", s.handleHealth)
	g.GET("/presets", s.handlePresets)

	rl := g.Group("/ratelimit")
	rl.GET("/stats", s.handleStats)
	rl.GET("/buckets", s.handleListBuckets)
	rl.DELETE("/buckets", s.handleClearBuckets)

	// 键可能包含 "/"，通过查询参数传递
	rl.GET("/bucket", s.handleGetBucket)
	rl.DELETE("/bucket", s.handleResetBucket)
}

// handleMetrics 处理 Prometheus 指标请求
func (s *AdminService) handleMetrics(c *gin.Context) {
	if s.registry == nil {
		response.NotFound(c, "metrics registry not available")
		return
	}

	handler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	handler.ServeHTTP(c.Writer, c.Request)
}

// handleHealth 处理健康检查，远程存储不可达时仍返回 200，限流降级到本地
func (s *AdminService) handleHealth(c *gin.Context) {
	remote := gin.H{"configured": s.backend != nil}
	status := "ok"

	if s.backend != nil {
		remote["type"] = s.backend.Type()

		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		err := s.backend.Ping(ctx)
		cancel()

		remote["reachable"] = err == nil
		if err != nil {
			status = "degraded"
			remote["error"] = err.Error()
			s.logger.Info("Remote rate limit store is unreachable", "type", s.backend.Type(), "error", err.Error())
		}
	}

	if s.breaker != nil {
		remote["breaker"] = s.breaker.State().String()
	}

	response.OK(c, gin.H{
		"status":  status,
		"uptime":  time.Since(s.startTime).Seconds(),
		"runtime": gin.H{"goVersion": runtime.Version(), "goroutines": runtime.NumGoroutine()},
		"remote":  remote,
	})
}

// handlePresets 列出预置配置，可通过 class 参数过滤
func (s *AdminService) handlePresets(c *gin.Context) {
	var configs []ratelimit.Config
	if class := c.Query("class"); class != "" {
		configs = ratelimit.PresetsByClass(ratelimit.Class(class))
	} else {
		for _, name := range ratelimit.PresetNames() {
			configs = append(configs, ratelimit.MustPreset(name))
		}
	}

	views := make([]presetView, 0, len(configs))
	for _, cfg := range configs {
		class, _ := ratelimit.PresetClass(cfg.Name)
		views = append(views, presetView{
			Name:     cfg.Name,
			Class:    class,
			Requests: cfg.Requests,
			Window:   cfg.Window.String(),
			KeyType:  cfg.KeyType,
			Message:  cfg.Message,
		})
	}

	response.OK(c, views)
}

// handleStats 返回本地桶存储统计
func (s *AdminService) handleStats(c *gin.Context) {
	backendType := "none"
	if s.backend != nil {
		backendType = s.backend.Type()
	}

	response.OK(c, gin.H{
		"store":   s.local.Stats(),
		"backend": backendType,
	})
}

// handleListBuckets 列出本地桶的键
func (s *AdminService) handleListBuckets(c *gin.Context) {
	keys := s.local.Store().Keys()
	response.OK(c, gin.H{"total": len(keys), "keys": keys})
}

// handleClearBuckets 清空本地桶，远程存储中的窗口不受影响，按各自的过期时间失效
func (s *AdminService) handleClearBuckets(c *gin.Context) {
	cleared := s.local.Store().Len()
	s.local.Clear()

	s.logger.Info("All rate limit buckets cleared", "count", cleared)
	response.OK(c, gin.H{"cleared": cleared, "scope": scopeLocal})
}

// handleGetBucket 查看指定键的桶状态
func (s *AdminService) handleGetBucket(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		response.BadRequest(c, "query parameter 'key' is required")
		return
	}

	snap, ok := s.local.Status(key)
	if !ok {
		response.Error(response.CodeNotFound, "bucket not found").WithDetail(key).JSON(c, http.StatusNotFound)
		return
	}

	response.OK(c, snap)
}

// handleResetBucket 重置指定键的桶，配置了 Resetter 时同时删除远程窗口
func (s *AdminService) handleResetBucket(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		response.BadRequest(c, "query parameter 'key' is required")
		return
	}

	scope := scopeLocal
	var (
		found bool
		err   error
	)
	if s.resetter != nil && s.backend != nil {
		scope = scopeRemote
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		found, err = s.resetter.Reset(ctx, key)
		cancel()
	} else {
		found = s.local.Reset(key)
	}

	if err != nil {
		s.logger.Error(err, "Failed to reset remote rate limit window", "key", key)
		response.BadGateway(c, "failed to reset remote rate limit window")
		return
	}
	if !found {
		response.Error(response.CodeNotFound, "bucket not found").WithDetail(key).JSON(c, http.StatusNotFound)
		return
	}

	s.logger.Info("Rate limit bucket reset", "key", key, "scope", scope)
	response.OK(c, gin.H{"key": key, "reset": true, "scope": scope})
}

// Run 启动管理服务
func (s *AdminService) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.logger.Info("Admin service started", "app", constants.AppName)
}

// Stop 停止管理服务
func (s *AdminService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	s.logger.Info("Admin service stopped")
}

// IsRunning 检查服务是否运行中
func (s *AdminService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
