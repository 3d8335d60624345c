package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/shengyanli1982/ratelimit-go/internal/backend"
	"github.com/shengyanli1982/ratelimit-go/internal/breaker"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"github.com/shengyanli1982/ratelimit-go/internal/metrics"
)

// DistributedOption 分布式限流器配置选项
type DistributedOption func(*DistributedLimiter)

// WithBackendTimeout 设置单次远程调用超时
func WithBackendTimeout(d time.Duration) DistributedOption {
	return func(l *DistributedLimiter) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithBreaker 设置包裹远程调用的熔断器
func WithBreaker(cb breaker.CircuitBreaker) DistributedOption {
	return func(l *DistributedLimiter) {
		l.breaker = cb
	}
}

// WithKeyPrefix 设置远程键前缀
func WithKeyPrefix(prefix string) DistributedOption {
	return func(l *DistributedLimiter) {
		l.keyPrefix = prefix
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logr.Logger) DistributedOption {
	return func(l *DistributedLimiter) {
		if logger != nil {
			l.logger = *logger
		}
	}
}

// WithDistributedMetrics 设置指标收集器
func WithDistributedMetrics(m metrics.MetricsCollector) DistributedOption {
	return func(l *DistributedLimiter) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithDistributedClock 设置时钟，测试中使用
func WithDistributedClock(now func() time.Time) DistributedOption {
	return func(l *DistributedLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// DistributedLimiter 基于远程滑动窗口日志的限流器
//
// 远程存储未配置、调用失败或熔断时，对同一请求改用本地令牌桶判定，调用方不会感知错误。
// 被拒绝的请求同样会写入窗口。
type DistributedLimiter struct {
	backend   backend.Backend
	local     *Limiter
	breaker   breaker.CircuitBreaker
	timeout   time.Duration
	keyPrefix string
	logger    logr.Logger
	metrics   metrics.MetricsCollector
	now       func() time.Time
	newMember func(now time.Time) string
}

// NewDistributedLimiter 创建分布式限流器，be 为 nil 时始终使用本地限流器
func NewDistributedLimiter(be backend.Backend, local *Limiter, opts ...DistributedOption) *DistributedLimiter {
	if local == nil {
		local = NewLimiter(nil)
	}

	l := &DistributedLimiter{
		backend:   be,
		local:     local,
		timeout:   time.Duration(constants.DefaultBackendTimeout) * time.Millisecond,
		keyPrefix: constants.DefaultBackendKeyPrefix,
		logger:    logr.Discard(),
		metrics:   metrics.NewNoopCollector(),
		now:       time.Now,
		newMember: func(now time.Time) string {
			return strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Check 对请求执行一次准入检查
func (l *DistributedLimiter) Check(ctx context.Context, req *http.Request, cfg Config) (Result, error) {
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
func (l *DistributedLimiter) CheckKey(ctx context.Context, cfg Config, key string) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	storeKey := StoreKey(cfg, key)

	if l.backend == nil {
		l.logger.Info("remote rate limit store not configured, using in-memory limiter", "key", storeKey)
		return l.fallback(storeKey, cfg, constants.FallbackNotConfigured), nil
	}

	now := l.now()
	w, err := l.record(ctx, l.keyPrefix+storeKey, now, cfg.Window)
	if err != nil {
		reason := constants.FallbackBackendError
		if breaker.IsRejected(err) {
			reason = constants.FallbackBreakerOpen
		}
		l.logger.Error(err, "remote rate limit check failed, using in-memory limiter", "key", storeKey, "backend", l.backend.Type(), "reason", reason)
		return l.fallback(storeKey, cfg, reason), nil
	}

	res := windowResult(cfg, w, now)
	l.metrics.RecordDecision(limiterDistributed, l.backend.Type(), res.Allowed)

	return res, nil
}

// record 在超时和熔断保护下执行一次远程记录，请求取消不会中断已发出的调用
func (l *DistributedLimiter) record(ctx context.Context, key string, now time.Time, window time.Duration) (backend.Window, error) {
	call := func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		start := time.Now()
		w, err := l.backend.Record(rctx, key, now, window, l.newMember(now))
		l.metrics.RecordBackendRequest(l.backend.Type(), time.Since(start), err)
		return w, err
	}

	if l.breaker == nil {
		v, err := call()
		if err != nil {
			return backend.Window{}, err
		}
		return v.(backend.Window), nil
	}

	v, err := l.breaker.Execute(call)
	if err != nil {
		return backend.Window{}, err
	}
	return v.(backend.Window), nil
}

// fallback 使用本地令牌桶判定
func (l *DistributedLimiter) fallback(storeKey string, cfg Config, reason string) Result {
	l.metrics.RecordFallback(reason)
	res := l.local.checkKey(storeKey, cfg)
	l.metrics.RecordDecision(limiterDistributed, backendMemory, res.Allowed)
	return res
}

// windowResult 根据窗口内已有的请求数计算结果
func windowResult(cfg Config, w backend.Window, now time.Time) Result {
	limit := int64(cfg.Requests)

	remaining := limit - w.Count - 1
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   w.Count < limit,
		Limit:     cfg.Requests,
		Remaining: int(remaining),
		Reset:     now.Add(cfg.Window),
	}

	if !res.Allowed {
		wait := cfg.Window
		if !w.Oldest.IsZero() {
			wait = w.Oldest.Add(cfg.Window).Sub(now)
		}
		res.RetryAfter = ceilSeconds(wait)
	}

	return res
}

// Reset 删除存储键的本地桶和远程窗口，任一侧存在即返回 true
func (l *DistributedLimiter) Reset(ctx context.Context, storeKey string) (bool, error) {
	found := l.local.Reset(storeKey)
	if l.backend == nil {
		return found, nil
	}

	rctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	remote, err := l.backend.Delete(rctx, l.keyPrefix+storeKey)
	if err != nil {
		return found, err
	}
	return found || remote, nil
}

// Backend 返回远程存储，未配置时为 nil
func (l *DistributedLimiter) Backend() backend.Backend {
	return l.backend
}

// Local 返回降级使用的本地限流器
func (l *DistributedLimiter) Local() *Limiter {
	return l.local
}
