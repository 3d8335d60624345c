package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/shengyanli1982/ratelimit-go/internal/auth"
	"github.com/shengyanli1982/ratelimit-go/internal/client"
	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"github.com/shengyanli1982/ratelimit-go/internal/headers"
	"github.com/shengyanli1982/ratelimit-go/internal/metrics"
	"github.com/shengyanli1982/ratelimit-go/internal/ratelimit"
	"github.com/shengyanli1982/ratelimit-go/internal/response"
)

// routeAny 匹配所有方法
const routeAny = "ANY"

// gatewayRoute 一条装配好的网关路由
type gatewayRoute struct {
	config  config.RouteConfig
	limit   gin.HandlerFunc
	handler gin.HandlerFunc
	pool    *client.ConnectionPool // 无上游时为 nil
}

// GatewayService 代表网关服务，按路由依次应用限流预置配置
type GatewayService struct {
	mu      sync.RWMutex
	routes  []*gatewayRoute
	logger  *logr.Logger
	metrics metrics.MetricsCollector
	running bool
}

// NewGatewayService 创建网关服务，路由引用未知预置配置时返回错误
func NewGatewayService(routes []config.RouteConfig, deps Dependencies) (*GatewayService, error) {
	if deps.Checker == nil {
		return nil, ErrNilChecker
	}
	deps = deps.withDefaults()

	s := &GatewayService{
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}

	for i := range routes {
		r, err := s.buildRoute(routes[i], deps.Checker)
		if err != nil {
			s.closePools()
			return nil, fmt.Errorf("route %s: %w", routes[i].Name, err)
		}
		s.routes = append(s.routes, r)
	}

	return s, nil
}

// buildRoute 解析预置配置并创建限流中间件和处理器
func (s *GatewayService) buildRoute(rc config.RouteConfig, checker ratelimit.Checker) (*gatewayRoute, error) {
	limits := make([]ratelimit.Config, 0, len(rc.Presets))
	for _, name := range rc.Presets {
		cfg, ok := ratelimit.Preset(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
		}
		limits = append(limits, cfg)
	}

	limit, err := ratelimit.WithMultipleRateLimits(checker, limits, ratelimit.WithMiddlewareLogger(s.logger))
	if err != nil {
		return nil, err
	}

	r := &gatewayRoute{config: rc, limit: limit}

	if rc.Upstream == nil {
		r.handler = s.handleAllowed(rc.Name)
		return r, nil
	}

	r.handler, r.pool, err = s.newUpstreamHandler(rc)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterGroup 实现orbit.Service接口，注册到orbit引擎
func (s *GatewayService) RegisterGroup(g *gin.RouterGroup) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.routes {
		handlers := []gin.HandlerFunc{
			s.recordRequest(r.config.Name),
			s.attachCaller,
			r.limit,
			r.handler,
		}

		if r.config.Method == routeAny || r.config.Method == "" {
			g.Any(r.config.Path, handlers...)
		} else {
			g.Handle(r.config.Method, r.config.Path, handlers...)
		}
	}
}

// recordRequest 记录处理结果指标，包括被拒绝的请求
func (s *GatewayService) recordRequest(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.RecordHTTPRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// attachCaller 从上游认证层写入的请求头读取调用方身份
//
// 网关不校验这些头，部署时必须由可信认证层覆盖客户端传入的值。
func (s *GatewayService) attachCaller(c *gin.Context) {
	caller := ratelimit.Caller{
		UserID:         c.GetHeader(constants.HeaderUserID),
		OrganizationID: c.GetHeader(constants.HeaderOrganizationID),
	}
	if caller != (ratelimit.Caller{}) {
		c.Request = c.Request.WithContext(ratelimit.WithCaller(c.Request.Context(), caller))
	}
	c.Next()
}

// handleAllowed 无上游时直接返回放行结果
func (s *GatewayService) handleAllowed(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, gin.H{"route": route, "allowed": true})
	}
}

// newUpstreamHandler 创建转发到上游的处理器
func (s *GatewayService) newUpstreamHandler(rc config.RouteConfig) (gin.HandlerFunc, *client.ConnectionPool, error) {
	target, err := url.Parse(rc.Upstream.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid upstream url: %w", err)
	}

	authenticator, err := auth.FromConfig(rc.Upstream.Auth)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	rewriter, err := headers.NewRewriter(rc.Upstream.Headers)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid upstream headers: %w", err)
	}

	pool := client.NewConnectionPool(rc.Upstream.HTTPClient)
	logger := s.logger.WithValues("route", rc.Name, "upstream", target.Host)

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
		if err := rewriter.ApplyToRequest(req); err != nil {
			logger.Error(err, "Failed to rewrite upstream request headers")
		}
		if err := authenticator.Apply(req); err != nil {
			logger.Error(err, "Failed to apply upstream authentication")
		}
	}
	proxy.Transport = pool.RoundTripper()
	proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		logger.Error(err, "Upstream request failed", "path", req.URL.Path)
		response.WriteJSON(w, http.StatusBadGateway, response.Error(response.CodeBadGateway, "upstream request failed").GetResponse())
	}

	timeout := upstreamTimeout(rc.Upstream.HTTPClient)

	return func(c *gin.Context) {
		req := c.Request
		if timeout > 0 {
			ctx, cancel := context.WithTimeout(req.Context(), timeout)
			defer cancel()
			req = req.WithContext(ctx)
		}
		proxy.ServeHTTP(c.Writer, req)
	}, pool, nil
}

// upstreamTimeout 单次转发的总超时
func upstreamTimeout(cfg *config.HTTPClientConfig) time.Duration {
	if cfg == nil || cfg.Timeout == nil || cfg.Timeout.Request <= 0 {
		return time.Duration(constants.DefaultForwardRequestTimeout) * time.Millisecond
	}
	return time.Duration(cfg.Timeout.Request) * time.Millisecond
}

// Routes 返回路由配置
func (s *GatewayService) Routes() []config.RouteConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	routes := make([]config.RouteConfig, 0, len(s.routes))
	for _, r := range s.routes {
		routes = append(routes, r.config)
	}
	return routes
}

// Run 启动网关服务
func (s *GatewayService) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.logger.Info("Gateway service started")
}

// Stop 停止网关服务并释放上游连接
func (s *GatewayService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.closePools()
	s.running = false
	s.logger.Info("Gateway service stopped")
}

// IsRunning 检查服务是否运行中
func (s *GatewayService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *GatewayService) closePools() {
	for _, r := range s.routes {
		if r.pool != nil {
			_ = r.pool.Close()
		}
	}
}
