package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/shengyanli1982/gs"
	"github.com/shengyanli1982/law"
	"github.com/shengyanli1982/orbit/utils/log"
	"github.com/shengyanli1982/ratelimit-go/internal/backend"
	"github.com/shengyanli1982/ratelimit-go/internal/breaker"
	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"github.com/shengyanli1982/ratelimit-go/internal/metrics"
	"github.com/shengyanli1982/ratelimit-go/internal/ratelimit"
	"github.com/shengyanli1982/ratelimit-go/internal/server"
)

// Version 通过 ldflags 在编译时设置
var Version = constants.DefaultVersion

const ASCII_LOGO = `
██████╗  █████╗ ████████╗███████╗██╗     ██╗███╗   ███╗██╗████████╗██████╗
██╔══██╗██╔══██╗╚══██╔══╝██╔════╝██║     ██║████╗ ████║██║╚══██╔══╝██╔══██╗
██████╔╝███████║   ██║   █████╗  ██║     ██║██╔████╔██║██║   ██║   ██║  ██║
██╔══██╗██╔══██║   ██║   ██╔══╝  ██║     ██║██║╚██╔╝██║██║   ██║   ██║  ██║
██║  ██║██║  ██║   ██║   ███████╗███████╗██║██║ ╚═╝ ██║██║   ██║   ██████╔╝
╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝╚══════╝╚═╝╚═╝     ╚═╝╚═╝   ╚═╝   ╚═════╝
	`

// pingTimeout 启动时探测远程存储的超时
const pingTimeout = 3 * time.Second

// ServiceContext 服务上下文结构体，用于管理服务所需的所有组件
type ServiceContext struct {
	logger      *logr.Logger             // 日志记录器
	asyncWriter *law.WriteAsyncer        // 异步写入器
	config      *config.Config           // 服务配置
	configMgr   *config.Manager          // 配置管理器
	metrics     metrics.MetricsCollector // 指标收集器
	backend     backend.Backend          // 远程存储，可以为 nil
	httpServer  *server.Server           // 网关和管理服务器
}

// isReleaseMode 判断是否为发布模式
// releaseMode: 是否为发布模式
func isReleaseMode(releaseMode bool) bool {
	return releaseMode || gin.Mode() == gin.ReleaseMode
}

// initLogger 初始化日志系统
// releaseMode: 是否为发布模式
// jsonOutput: 是否输出 JSON 格式日志
func initLogger(releaseMode, jsonOutput bool) (*logr.Logger, *law.WriteAsyncer) {
	var (
		logger      *logr.Logger
		asyncWriter *law.WriteAsyncer
	)

	// 在发布模式下使用异步写入器
	if isReleaseMode(releaseMode) {
		asyncWriter = law.NewWriteAsyncer(os.Stdout, law.DefaultConfig())
		if jsonOutput {
			// JSON 格式输出使用 ZapLogger
			logger = log.NewZapLogger(zapcore.AddSync(asyncWriter)).GetLogrLogger()
		} else {
			// 普通格式输出使用 LogrLogger
			logger = log.NewLogrLogger(asyncWriter).GetLogrLogger()
		}
		return logger, asyncWriter
	}

	// 开发模式直接使用标准输出
	logger = log.NewLogrLogger(os.Stdout).GetLogrLogger()
	return logger, nil
}

// initConfig 初始化配置管理器，路由引用的预置配置在加载时校验
// configPath: 配置文件路径
func initConfig(configPath string) (*config.Manager, *config.Config, error) {
	configManager, err := config.NewManager(config.WithPresetLookup(func(name string) bool {
		_, ok := ratelimit.Preset(name)
		return ok
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create configuration manager: %w", err)
	}
	if err := configManager.LoadFromFile(configPath); err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return configManager, configManager.GetConfig(), nil
}

// initMetrics 创建使用全局注册器的指标收集器
func initMetrics() (metrics.MetricsCollector, error) {
	return metrics.GetGlobalRegistry().CreateSharedCollector(constants.MetricsCollectorGlobal, &metrics.Config{
		Type:      constants.MetricsTypePrometheus,
		Enabled:   true,
		Namespace: constants.MetricsNamespace,
	})
}

// initBackend 从环境变量解析远程存储，只在进程启动时执行一次
// localOnly: 是否跳过远程存储
func initBackend(ctx *ServiceContext, localOnly bool) backend.Backend {
	if localOnly {
		ctx.logger.Info("Remote rate limit store disabled, using in-memory limiter only")
		return nil
	}

	be, err := backend.Resolve(backend.OSEnv, backend.Options{
		HTTPClient: ctx.config.Backend.HTTPClient,
		Logger:     ctx.logger,
	})
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrInitFailed):
			ctx.logger.Error(err, "Remote rate limit store unavailable, using in-memory limiter")
		case errors.Is(err, backend.ErrNotConfigured):
			ctx.logger.Info("Remote rate limit store not configured, using in-memory limiter")
		default:
			ctx.logger.Error(err, "Remote rate limit store unavailable, using in-memory limiter")
		}
		return nil
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := be.Ping(pingCtx); err != nil {
		// 仍然保留远程存储，请求期间的失败会降级并由熔断器保护
		ctx.logger.Error(err, "Remote rate limit store ping failed", "type", be.Type())
	} else {
		ctx.logger.Info("Remote rate limit store reachable", "type", be.Type())
	}

	return be
}

// newLimiters 组装本地和分布式限流器
func newLimiters(ctx *ServiceContext) (*ratelimit.Limiter, *ratelimit.DistributedLimiter, breaker.CircuitBreaker) {
	store := ratelimit.NewStore(
		ratelimit.WithMaxBuckets(ctx.config.Store.MaxBuckets),
		ratelimit.WithShards(ctx.config.Store.Shards),
		ratelimit.WithStoreMetrics(ctx.metrics),
	)
	local := ratelimit.NewLimiter(store, ratelimit.WithMetrics(ctx.metrics))

	cb := breaker.NewCircuitBreaker(
		breaker.SettingsFromConfig(constants.DefaultBreakerName, ctx.config.Backend.Breaker),
		func(name string, from, to gobreaker.State) {
			ctx.metrics.RecordBreakerState(name, int(to))
			ctx.logger.Info("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	)

	dist := ratelimit.NewDistributedLimiter(ctx.backend, local,
		ratelimit.WithBackendTimeout(time.Duration(ctx.config.Backend.Timeout)*time.Millisecond),
		ratelimit.WithBreaker(cb),
		ratelimit.WithKeyPrefix(ctx.config.Backend.KeyPrefix),
		ratelimit.WithLogger(ctx.logger),
		ratelimit.WithDistributedMetrics(ctx.metrics),
	)

	return local, dist, cb
}

// closeBackend 关闭远程存储连接
func closeBackend(ctx *ServiceContext) {
	if ctx.backend == nil {
		return
	}
	if err := ctx.backend.Close(); err != nil {
		ctx.logger.Error(err, "Failed to close remote rate limit store", "type", ctx.backend.Type())
		return
	}
	ctx.logger.Info("Remote rate limit store closed", "type", ctx.backend.Type())
}

// releaseMetrics 服务停止后注销全局指标收集器
func releaseMetrics(ctx *ServiceContext) {
	if err := metrics.GetGlobalRegistry().UnregisterCollector(constants.MetricsCollectorGlobal); err != nil {
		ctx.logger.Error(err, "Failed to release metrics collector")
	}
}

// setupGracefulShutdown 设置优雅关闭机制
// ctx: 服务上下文
// releaseMode: 是否为发布模式
func setupGracefulShutdown(ctx *ServiceContext, releaseMode bool) {
	// 创建服务器终止信号，先停止接收请求再关闭远程存储和指标收集器
	serverSignal := gs.NewTerminateSignal()
	serverSignal.RegisterCancelHandles(func() {
		ctx.httpServer.Stop()
		closeBackend(ctx)
		releaseMetrics(ctx)
	})

	// 创建写入器终止信号
	writerSignal := gs.NewTerminateSignal()
	if isReleaseMode(releaseMode) && ctx.asyncWriter != nil {
		writerSignal.RegisterCancelHandles(ctx.asyncWriter.Stop)
	}

	// 等待所有终止信号完成
	gs.WaitForSync(serverSignal, writerSignal)
}

func main() {
	// 定义命令行参数
	var (
		configPath  string
		releaseMode bool
		jsonOutput  bool
		localOnly   bool
	)

	// 设置命令行参数
	cmd := cobra.Command{
		Use:     constants.AppName,
		Version: Version,
		Short:   "ratelimitd is a rate limiting gateway with distributed sliding windows",
		Long: `ratelimitd applies named rate limit presets to HTTP routes.

Core Features:
- Token bucket limiter with a bounded in-memory bucket store
- IP, user, organization and custom rate limit keys
- Redis or Upstash backed sliding window shared across instances
- Automatic fallback to the in-memory limiter with circuit breaking
- Optional forwarding of admitted requests to an upstream
- Admin endpoints for metrics, bucket inspection and reset

Remote store selection (environment):
- UPSTASH_REDIS_REST_URL and UPSTASH_REDIS_REST_TOKEN
- REDIS_URL and optional REDIS_PASSWORD

Author: shengyanli1982
Repository: https://github.com/shengyanli1982/ratelimit-go`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 创建服务上下文
			ctx := &ServiceContext{}

			// 初始化日志系统
			ctx.logger, ctx.asyncWriter = initLogger(releaseMode, jsonOutput)

			// 加载服务配置
			var err error
			ctx.configMgr, ctx.config, err = initConfig(configPath)
			if err != nil {
				ctx.logger.Error(err, "Failed to load service configuration")
				return err
			}

			ctx.logger.Info("Configuration loaded successfully", "path", ctx.configMgr.GetConfigPath(), "routes", len(ctx.config.Routes))

			// 初始化指标收集器
			ctx.metrics, err = initMetrics()
			if err != nil {
				ctx.logger.Error(err, "Failed to initialize metrics collector")
				return err
			}

			// 解析远程存储并组装限流器
			ctx.backend = initBackend(ctx, localOnly)
			local, dist, cb := newLimiters(ctx)

			// 输出 ASCII 标志（只有在配置加载成功后才显示）
			fmt.Println(ASCII_LOGO)

			ctx.httpServer, err = server.NewServer(!releaseMode, ctx.config, server.Dependencies{
				Checker:  dist,
				Local:    local,
				Backend:  ctx.backend,
				Breaker:  cb,
				Metrics:  ctx.metrics,
				Registry: metrics.GetGlobalRegistry().GetRegistry(),
				Logger:   ctx.logger,
			})
			if err != nil {
				ctx.logger.Error(err, "Failed to create servers")
				closeBackend(ctx)
				return err
			}

			// 启动服务
			ctx.httpServer.Start()
			ctx.logger.Info("ratelimitd started successfully")

			// 设置优雅关闭机制
			setupGracefulShutdown(ctx, releaseMode)

			ctx.logger.Info("ratelimitd stopped")
			return nil
		},
	}

	// 注册命令行参数
	cmd.Flags().StringVarP(&configPath, constants.FlagConfig, constants.FlagConfigShort, constants.DefaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVarP(&jsonOutput, constants.FlagJSON, constants.FlagJSONShort, false, "Enable JSON format logging output (only effective in release mode)")
	cmd.Flags().BoolVarP(&releaseMode, constants.FlagRelease, constants.FlagReleaseShort, false, "Enable release mode for performance optimizations and async logging")
	cmd.Flags().BoolVarP(&localOnly, constants.FlagLocalOnly, constants.FlagLocalOnlyShort, false, "Ignore remote store settings and use the in-memory limiter only")

	// 执行命令
	if err := cmd.Execute(); err != nil {
		fmt.Printf("Failed to execute command: %v\n", err)
		os.Exit(constants.ExitFailure)
	}
}
