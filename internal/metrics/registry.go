package metrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 注册器相关错误定义
var (
	ErrCollectorAlreadyRegistered = errors.New("collector already registered")
	ErrCollectorNotFound          = errors.New("collector not found")
	ErrEmptyCollectorName         = errors.New("collector name cannot be empty")
)

// MetricsRegistry 代表指标注册管理器，网关和管理服务共用同一个 Prometheus 注册器
type MetricsRegistry struct {
	mu         sync.RWMutex
	registry   *prometheus.Registry
	collectors map[string]MetricsCollector
}

// 全局单例实例
var (
	globalRegistry *MetricsRegistry
	registryOnce   sync.Once
)

// GetGlobalRegistry 获取全局单例注册器实例
func GetGlobalRegistry() *MetricsRegistry {
	registryOnce.Do(func() {
		globalRegistry = NewMetricsRegistry()
	})
	return globalRegistry
}

// NewMetricsRegistry 创建新的指标注册器实例（用于测试或特殊场景）
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		registry:   prometheus.NewRegistry(),
		collectors: make(map[string]MetricsCollector),
	}
}

// CreateSharedCollector 创建一个使用共享注册器的收集器
func (r *MetricsRegistry) CreateSharedCollector(name string, config *Config) (MetricsCollector, error) {
	if name == "" {
		return nil, ErrEmptyCollectorName
	}
	if config == nil {
		return nil, ErrNilConfig
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collectors[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectorAlreadyRegistered, name)
	}

	collector, err := NewFactory(r.registry).Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create collector %s: %w", name, err)
	}

	r.collectors[name] = collector

	return collector, nil
}

// UnregisterCollector 注销指标收集器
func (r *MetricsRegistry) UnregisterCollector(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	collector, exists := r.collectors[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectorNotFound, name)
	}

	if err := collector.Close(); err != nil {
		return fmt.Errorf("failed to close collector %s: %w", name, err)
	}

	delete(r.collectors, name)

	return nil
}

// GetRegistry 获取 Prometheus 注册器
func (r *MetricsRegistry) GetRegistry() *prometheus.Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.registry
}
