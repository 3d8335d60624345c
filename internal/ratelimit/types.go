// Package ratelimit 提供请求准入控制：令牌桶本地限流器、基于远程滑动窗口的分布式限流器、
// gin 中间件适配器以及预置的限流配置目录。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// KeyType 限流键的派生策略
type KeyType string

const (
	KeyTypeIP     KeyType = "ip"
	KeyTypeUser   KeyType = "user"
	KeyTypeOrg    KeyType = "org"
	KeyTypeCustom KeyType = "custom"
)

// 限流配置错误定义，均包装 ErrConfiguration
var (
	ErrConfiguration        = errors.New(constants.ErrMsgConfiguration)
	ErrUserRequired         = fmt.Errorf("%w: %s", ErrConfiguration, constants.ErrMsgUserRequired)
	ErrOrganizationRequired = fmt.Errorf("%w: %s", ErrConfiguration, constants.ErrMsgOrganizationRequired)
	ErrKeyGeneratorRequired = fmt.Errorf("%w: %s", ErrConfiguration, constants.ErrMsgKeyGeneratorRequired)
	ErrUnknownKeyType       = fmt.Errorf("%w: %s", ErrConfiguration, constants.ErrMsgUnknownKeyType)
	ErrInvalidRequests      = fmt.Errorf("%w: %s", ErrConfiguration, constants.ErrMsgInvalidRequests)
	ErrInvalidWindow        = fmt.Errorf("%w: %s", ErrConfiguration, constants.ErrMsgInvalidWindow)
	ErrNoConfigs            = fmt.Errorf("%w: at least one rate limit config is required", ErrConfiguration)
)

// Caller 认证层提供的调用方身份
type Caller struct {
	UserID         string
	OrganizationID string
}

type callerContextKey struct{}

// WithCaller 将调用方身份写入上下文
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext 从上下文读取调用方身份，不存在时返回零值
func CallerFromContext(ctx context.Context) Caller {
	if ctx == nil {
		return Caller{}
	}
	caller, _ := ctx.Value(callerContextKey{}).(Caller)
	return caller
}

// KeyGenerator 自定义限流键生成函数
type KeyGenerator func(req *http.Request, caller Caller) string

// Config 代表一条限流规则
type Config struct {
	// Name 规则名称，非空时作为存储键的作用域
	Name string

	// Requests 每个窗口允许的请求数
	Requests int

	// Window 窗口长度
	Window time.Duration

	// KeyType 限流键派生策略
	KeyType KeyType

	// KeyGenerator 自定义键生成函数，仅 KeyTypeCustom 使用
	KeyGenerator KeyGenerator

	// Message 拒绝响应中的提示信息，为空时使用默认提示
	Message string
}

// Validate 检查规则是否合法
func (c Config) Validate() error {
	if c.Requests <= 0 {
		return ErrInvalidRequests
	}
	if c.Window <= 0 {
		return ErrInvalidWindow
	}
	switch c.KeyType {
	case KeyTypeIP, KeyTypeUser, KeyTypeOrg:
		return nil
	case KeyTypeCustom:
		if c.KeyGenerator == nil {
			return ErrKeyGeneratorRequired
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKeyType, c.KeyType)
	}
}

// RejectionMessage 返回拒绝响应中的提示信息
func (c Config) RejectionMessage(res Result) string {
	if c.Message != "" {
		return c.Message
	}
	return fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", res.RetryAfterSeconds())
}

// refillRate 每秒补充的令牌数
func (c Config) refillRate() float64 {
	return float64(c.Requests) / c.Window.Seconds()
}

// Result 一次准入检查的结果
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int

	// Reset 桶预计重新装满（或窗口关闭）的时间
	Reset time.Time

	// RetryAfter 仅在拒绝时非零
	RetryAfter time.Duration
}

// RetryAfterSeconds 返回向上取整的重试秒数
func (r Result) RetryAfterSeconds() int64 {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int64(math.Ceil(r.RetryAfter.Seconds()))
}

// ResetMillis 返回 Unix 毫秒形式的重置时间
func (r Result) ResetMillis() int64 {
	return r.Reset.UnixMilli()
}

// Checker 准入检查接口，本地和分布式限流器都实现它
type Checker interface {
	// Check 派生限流键并执行一次检查
	Check(ctx context.Context, req *http.Request, cfg Config) (Result, error)

	// CheckKey 对 ResolveKey 已派生的限流键执行一次检查
	CheckKey(ctx context.Context, cfg Config, key string) (Result, error)
}

// ceilSeconds 将等待时间向上取整到秒，最少 1 秒
func ceilSeconds(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}
