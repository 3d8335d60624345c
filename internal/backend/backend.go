// Package backend 提供跨进程共享的滑动窗口日志存储。
//
// 每个限流键对应一个有序集合，成员为单次请求（分数为毫秒时间戳），
// 每次记录时先清除窗口外的成员，再计数并加入当前请求，并刷新过期时间。
package backend

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

const (
	// TypeRedis 连接式 Redis
	TypeRedis = "redis"

	// TypeUpstash HTTP 接口的 Upstash Redis
	TypeUpstash = "upstash"
)

// 远程存储错误定义
var (
	ErrNotConfigured     = errors.New(constants.ErrMsgBackendNotConfigured)
	ErrInitFailed        = errors.New(constants.ErrMsgBackendInitFailed)
	ErrClosed            = errors.New(constants.ErrMsgBackendClosed)
	ErrMalformedResponse = errors.New(constants.ErrMsgMalformedResponse)
)

// Window 一次记录前窗口内的状态
type Window struct {
	// Count 加入当前请求之前窗口内的成员数
	Count int64

	// Oldest 窗口内最早的成员时间，为零值表示窗口为空
	Oldest time.Time
}

// Backend 远程滑动窗口存储接口
type Backend interface {
	// Record 在一次原子操作中清理过期成员、计数并记录当前请求
	Record(ctx context.Context, key string, now time.Time, window time.Duration, member string) (Window, error)

	// Delete 删除一个键的窗口，返回键是否存在
	Delete(ctx context.Context, key string) (bool, error)

	// Ping 检查远程存储是否可达
	Ping(ctx context.Context) error

	// Type 获取远程存储类型
	Type() string

	// Close 释放连接
	Close() error
}

// windowStartBound 返回排他的窗口起点，用于删除分数小于起点的成员
func windowStartBound(now time.Time, window time.Duration) string {
	return "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
}

// expireSeconds 返回键的过期秒数，至少 1 秒
func expireSeconds(window time.Duration) int64 {
	secs := int64(math.Ceil(window.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
