package server

import (
	"github.com/go-logr/logr"
	"github.com/shengyanli1982/orbit"
	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// newEngineConfig 创建 Orbit 引擎配置，未设置超时时使用默认值
func newEngineConfig(debug bool, cfg *config.ServerConfig, logger *logr.Logger) *orbit.Config {
	timeout := cfg.Timeout
	if timeout == nil {
		timeout = &config.TimeoutConfig{
			Idle:  constants.DefaultIdleTimeout,
			Read:  constants.DefaultReadTimeout,
			Write: constants.DefaultWriteTimeout,
		}
	}

	ocfg := orbit.NewConfig().
		WithLogger(logger).
		WithAddress(cfg.Address).
		WithPort(uint16(cfg.Port)).
		WithHttpIdleTimeout(uint32(timeout.Idle)). // 配置提供的单位是毫秒，直接使用
		WithHttpReadHeaderTimeout(uint32(timeout.Read)).
		WithHttpReadTimeout(uint32(timeout.Read)).
		WithHttpWriteTimeout(uint32(timeout.Write))

	if !debug {
		ocfg.WithRelease()
	}

	return ocfg
}
