package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/shengyanli1982/ratelimit-go/internal/metrics"
)

const (
	limiterLocal       = "local"
	limiterDistributed = "distributed"
	backendMemory      = "memory"
)

// LimiterOption 本地限流器配置选项
type LimiterOption func(*Limiter)

// WithClock 设置时钟，测试中使用
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m metrics.MetricsCollector) LimiterOption {
	return func(l *Limiter) {
		if m != nil {
			l.metrics = m
		}
	}
}

// Limiter 基于令牌桶的进程内限流器
//
// 每次 Check 对目标桶恰好消费一次，同一请求重复调用会重复扣减。
type Limiter struct {
	store   *Store
	now     func() time.Time
	metrics metrics.MetricsCollector
}

// NewLimiter 创建新的本地限流器，store 为 nil 时使用默认存储
func NewLimiter(store *Store, opts ...LimiterOption) *Limiter {
	if store == nil {
		store = NewStore()
	}

	l := &Limiter{
		store:   store,
		now:     time.Now,
		metrics: metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Check 对请求执行一次准入检查
func (l *Limiter) Check(ctx context.Context, req *http.Request, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	key, err := ResolveKey(req, cfg, CallerFromContext(ctx))
	if err != nil {
		return Result{}, err
	}

	return l.CheckKey(ctx, cfg, key)
}

// CheckKey 对已派生的限流键执行一次准入检查
func (l *Limiter) CheckKey(_ context.Context, cfg Config, key string) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	res := l.checkKey(StoreKey(cfg, key), cfg)
	l.metrics.RecordDecision(limiterLocal, backendMemory, res.Allowed)

	return res, nil
}

// checkKey 对已解析的存储键执行一次补充和消费
func (l *Limiter) checkKey(storeKey string, cfg Config) Result {
	now := l.now()
	return l.store.getOrCreate(storeKey, cfg, now).take(now)
}

// Store 返回底层桶存储
func (l *Limiter) Store() *Store {
	return l.store
}

// Status 返回指定存储键的桶状态
func (l *Limiter) Status(key string) (BucketSnapshot, bool) {
	return l.store.Get(key, l.now())
}

// Reset 删除指定存储键的桶，下次访问时重新装满
func (l *Limiter) Reset(key string) bool {
	return l.store.Delete(key)
}

// Clear 删除所有桶
func (l *Limiter) Clear() {
	l.store.Clear()
}

// Stats 返回存储统计信息
func (l *Limiter) Stats() StoreStats {
	return l.store.Stats()
}
