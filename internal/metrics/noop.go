package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// noopCollector 空操作指标收集器，用于禁用指标收集时的占位实现
type noopCollector struct {
	name string
}

// NewNoopCollector 创建新的空操作指标收集器实例
func NewNoopCollector() MetricsCollector {
	return &noopCollector{
		name: NoopType,
	}
}

func (c *noopCollector) RecordDecision(limiter, backend string, allowed bool) {}

func (c *noopCollector) RecordFallback(reason string) {}

func (c *noopCollector) RecordBackendRequest(backend string, duration time.Duration, err error) {}

func (c *noopCollector) RecordBreakerState(name string, state int) {}

func (c *noopCollector) RecordBuckets(count int) {}

func (c *noopCollector) RecordBucketEviction(reason string, count int) {}

func (c *noopCollector) RecordHTTPRequest(route, method string, statusCode int, duration time.Duration) {
}

func (c *noopCollector) GetRegistry() *prometheus.Registry {
	// 返回空的注册器
	return prometheus.NewRegistry()
}

func (c *noopCollector) Name() string {
	return c.name
}

func (c *noopCollector) Close() error {
	return nil
}
