package ratelimit

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// tokenEpsilon 吸收浮点补充误差
const tokenEpsilon = 1e-9

// bucket 单个限流键的令牌桶
type bucket struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	maxTokens  float64
	refillRate float64
	window     time.Duration

	// lastRefill 最近一次补充的 Unix 纳秒时间，淘汰时无锁读取
	lastRefill atomic.Int64
}

// BucketSnapshot 令牌桶的只读视图
type BucketSnapshot struct {
	Key        string    `json:"key"`
	Tokens     float64   `json:"tokens"`
	MaxTokens  float64   `json:"maxTokens"`
	RefillRate float64   `json:"refillRate"`
	LastRefill time.Time `json:"lastRefill"`
}

// newBucket 创建一个装满令牌的桶
func newBucket(cfg Config, now time.Time) *bucket {
	b := &bucket{
		limiter:    rate.NewLimiter(rate.Limit(cfg.refillRate()), cfg.Requests),
		maxTokens:  float64(cfg.Requests),
		refillRate: cfg.refillRate(),
		window:     cfg.Window,
	}
	b.lastRefill.Store(now.UnixNano())
	return b
}

// take 先补充再消费一个令牌
func (b *bucket) take(now time.Time) Result {
	b.mu.Lock()
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	b.mu.Unlock()

	b.lastRefill.Store(now.UnixNano())

	if tokens < 0 {
		tokens = 0
	}

	res := Result{
		Allowed:   allowed,
		Limit:     int(b.maxTokens),
		Remaining: int(math.Floor(tokens + tokenEpsilon)),
		Reset:     now.Add(b.untilFull(tokens)),
	}

	if !allowed {
		res.RetryAfter = b.retryAfter(tokens)
	}

	return res
}

// retryAfter 等待一个令牌可用所需的秒数
func (b *bucket) retryAfter(tokens float64) time.Duration {
	// (1 - tokens) / (max / window)，按窗口秒数计算避免除法误差
	seconds := math.Ceil((1-tokens)*b.window.Seconds()/b.maxTokens - tokenEpsilon)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// untilFull 桶重新装满所需的时间
func (b *bucket) untilFull(tokens float64) time.Duration {
	missing := b.maxTokens - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(float64(b.window) * missing / b.maxTokens)
}

// snapshot 返回当前时刻的桶状态
func (b *bucket) snapshot(key string, now time.Time) BucketSnapshot {
	b.mu.Lock()
	tokens := b.limiter.TokensAt(now)
	b.mu.Unlock()

	return BucketSnapshot{
		Key:        key,
		Tokens:     math.Max(0, tokens),
		MaxTokens:  b.maxTokens,
		RefillRate: b.refillRate,
		LastRefill: time.Unix(0, b.lastRefill.Load()),
	}
}
