package backend

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/shengyanli1982/ratelimit-go/internal/client"
	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// Env 环境变量查找函数，签名与 os.LookupEnv 一致
type Env func(key string) (string, bool)

// OSEnv 读取进程环境变量
var OSEnv Env = os.LookupEnv

// Options 远程存储解析选项
type Options struct {
	// HTTPClient REST 存储使用的连接池参数
	HTTPClient *config.HTTPClientConfig

	// Logger 记录解析结果，为 nil 时不记录
	Logger *logr.Logger
}

// MapEnv 返回基于 map 的环境变量查找函数
func MapEnv(values map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// Resolve 根据环境变量选择远程存储
//
// 同时存在 REST 地址和令牌时使用 Upstash；否则存在 REDIS_URL 时使用连接式 Redis；
// 都不存在时返回 ErrNotConfigured。前者创建失败时继续尝试后者，全部失败时错误同时包装
// ErrNotConfigured 和 ErrInitFailed。调用方负责只解析一次。
func Resolve(env Env, opts Options) (Backend, error) {
	if env == nil {
		env = OSEnv
	}
	logger := logr.Discard()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	var errs []error

	restURL, _ := env(constants.EnvUpstashURL)
	restToken, _ := env(constants.EnvUpstashToken)
	if restURL != "" && restToken != "" {
		pool := client.NewConnectionPool(opts.HTTPClient)
		b, err := NewUpstashBackend(restURL, restToken, pool)
		if err == nil {
			logger.Info("remote rate limit store initialized", "type", TypeUpstash)
			return b, nil
		}
		_ = pool.Close()
		logger.Error(err, "failed to initialize remote rate limit store", "type", TypeUpstash)
		errs = append(errs, err)
	}

	if redisURL, _ := env(constants.EnvRedisURL); redisURL != "" {
		password, _ := env(constants.EnvRedisPassword)
		b, err := NewRedisBackendFromURL(redisURL, password)
		if err == nil {
			logger.Info("remote rate limit store initialized", "type", TypeRedis)
			return b, nil
		}
		logger.Error(err, "failed to initialize remote rate limit store", "type", TypeRedis)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w: %w", ErrNotConfigured, ErrInitFailed, errors.Join(errs...))
	}
	return nil, ErrNotConfigured
}
