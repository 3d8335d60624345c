package breaker

import (
	"errors"

	"github.com/sony/gobreaker"
)

// CircuitBreaker 代表熔断器接口
type CircuitBreaker interface {
	// Execute 执行受保护的操作
	Execute(req func() (interface{}, error)) (interface{}, error)

	// Name 获取熔断器名称
	Name() string

	// State 获取当前状态
	State() gobreaker.State
}

// StateListener 熔断器状态变化回调
type StateListener func(name string, from, to gobreaker.State)

// IsRejected 判断错误是否由熔断器拒绝产生（开启或半开状态请求过多）
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
