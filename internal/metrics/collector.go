package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultAllowed  = "allowed"
	resultRejected = "rejected"
)

// prometheusCollector 基于 Prometheus 的指标收集器实现
type prometheusCollector struct {
	name     string
	registry *prometheus.Registry
	config   *Config

	// 限流决策指标
	decisionsTotal *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec

	// 远程存储指标
	backendRequestDuration *prometheus.HistogramVec
	backendErrorsTotal     *prometheus.CounterVec
	breakerState           *prometheus.GaugeVec

	// 本地桶存储指标
	buckets        prometheus.Gauge
	evictionsTotal *prometheus.CounterVec

	// HTTP 服务器指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewPrometheusCollectorWithRegistry 创建使用指定注册器的 Prometheus 指标收集器实例
func NewPrometheusCollectorWithRegistry(config *Config, registry *prometheus.Registry) (MetricsCollector, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	collector := &prometheusCollector{
		name:     PrometheusType,
		registry: registry,
		config:   config,
	}

	if err := collector.initMetrics(); err != nil {
		return nil, err
	}

	return collector, nil
}

// initMetrics 初始化所有 Prometheus 指标
func (c *prometheusCollector) initMetrics() error {
	prefix := c.config.Namespace
	if c.config.Subsystem != "" {
		prefix = c.config.Namespace + "_" + c.config.Subsystem
	}

	c.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"limiter", "backend", "result"},
	)

	c.fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_fallbacks_total",
			Help: "Total number of fallbacks to the local limiter",
		},
		[]string{"reason"},
	)

	c.backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_backend_request_duration_seconds",
			Help:    "Remote store round trip duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"backend"},
	)

	c.backendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_backend_errors_total",
			Help: "Total number of failed remote store round trips",
		},
		[]string{"backend"},
	)

	c.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	c.buckets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_buckets",
			Help: "Number of token buckets held in memory",
		},
	)

	c.evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_bucket_evictions_total",
			Help: "Total number of evicted token buckets",
		},
		[]string{"reason"},
	)

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway",
		},
		[]string{"route", "method", "status_code"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Gateway request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	collectors := []prometheus.Collector{
		c.decisionsTotal,
		c.fallbacksTotal,
		c.backendRequestDuration,
		c.backendErrorsTotal,
		c.breakerState,
		c.buckets,
		c.evictionsTotal,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	}

	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordDecision 记录一次限流决策
func (c *prometheusCollector) RecordDecision(limiter, backend string, allowed bool) {
	result := resultRejected
	if allowed {
		result = resultAllowed
	}
	c.decisionsTotal.WithLabelValues(limiter, backend, result).Inc()
}

// RecordFallback 记录一次降级
func (c *prometheusCollector) RecordFallback(reason string) {
	c.fallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordBackendRequest 记录一次远程存储往返
func (c *prometheusCollector) RecordBackendRequest(backend string, duration time.Duration, err error) {
	c.backendRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		c.backendErrorsTotal.WithLabelValues(backend).Inc()
	}
}

// RecordBreakerState 记录断路器状态
func (c *prometheusCollector) RecordBreakerState(name string, state int) {
	c.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBuckets 记录当前桶数量
func (c *prometheusCollector) RecordBuckets(count int) {
	c.buckets.Set(float64(count))
}

// RecordBucketEviction 记录桶淘汰
func (c *prometheusCollector) RecordBucketEviction(reason string, count int) {
	if count <= 0 {
		return
	}
	c.evictionsTotal.WithLabelValues(reason).Add(float64(count))
}

// RecordHTTPRequest 记录网关处理的 HTTP 请求
func (c *prometheusCollector) RecordHTTPRequest(route, method string, statusCode int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	c.httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// GetRegistry 获取 Prometheus 注册器
func (c *prometheusCollector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Name 获取收集器名称
func (c *prometheusCollector) Name() string {
	return c.name
}

// Close 关闭收集器并清理资源
func (c *prometheusCollector) Close() error {
	return nil
}
