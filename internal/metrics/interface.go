package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector 代表指标收集器接口，定义统一的指标收集行为
type MetricsCollector interface {
	// 限流决策指标收集方法

	// RecordDecision 记录一次限流决策
	// limiter: 限流器类型（local, distributed）
	// backend: 实际做出决策的存储（memory, redis, upstash）
	// allowed: 是否放行
	RecordDecision(limiter, backend string, allowed bool)

	// RecordFallback 记录一次降级到本地限流器
	// reason: 降级原因（not_configured, backend_error, breaker_open）
	RecordFallback(reason string)

	// 远程存储指标收集方法

	// RecordBackendRequest 记录一次远程存储往返
	// backend: 远程存储类型
	// duration: 往返耗时
	// err: 调用错误，nil 表示成功
	RecordBackendRequest(backend string, duration time.Duration, err error)

	// RecordBreakerState 记录断路器状态
	// name: 断路器名称
	// state: 断路器状态（0=关闭, 1=半开, 2=开启）
	RecordBreakerState(name string, state int)

	// 本地桶存储指标收集方法

	// RecordBuckets 记录当前桶数量
	RecordBuckets(count int)

	// RecordBucketEviction 记录桶淘汰
	// reason: 淘汰原因（idle, oldest）
	// count: 淘汰数量
	RecordBucketEviction(reason string, count int)

	// HTTP 服务器指标收集方法

	// RecordHTTPRequest 记录网关处理的 HTTP 请求
	// route: 路由名称
	// method: HTTP 方法
	// statusCode: HTTP 状态码
	// duration: 请求处理时间
	RecordHTTPRequest(route, method string, statusCode int, duration time.Duration)

	// 工具方法

	// GetRegistry 获取 Prometheus 注册器，用于与 orbit 框架集成
	GetRegistry() *prometheus.Registry

	// Name 获取收集器名称
	Name() string

	// Close 关闭收集器并清理资源
	Close() error
}

// MetricsCollectorFactory 代表指标收集器工厂接口
type MetricsCollectorFactory interface {
	// Create 根据配置创建指标收集器
	Create(config *Config) (MetricsCollector, error)
}

// Config 代表指标收集器配置
type Config struct {
	// Type 指标收集器类型（prometheus, noop）
	Type string `yaml:"type" json:"type"`

	// Enabled 是否启用指标收集
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Namespace 指标命名空间前缀
	Namespace string `yaml:"namespace" json:"namespace"`

	// Subsystem 指标子系统名称
	Subsystem string `yaml:"subsystem" json:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Type:      NoopType,
		Enabled:   true,
		Namespace: "ratelimit",
	}
}
