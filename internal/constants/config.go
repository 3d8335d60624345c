package constants

const (
	// Command line flags - 命令行标志

	// FlagConfig 配置文件路径参数名
	FlagConfig = "config"

	// FlagJSON JSON日志格式参数名
	FlagJSON = "json"

	// FlagRelease 发布模式参数名
	FlagRelease = "release"

	// FlagLocalOnly 仅使用本地限流器参数名
	FlagLocalOnly = "local-only"

	// Flag short aliases - 短参数别名

	// FlagConfigShort 配置文件路径短参数
	FlagConfigShort = "c"

	// FlagJSONShort JSON日志格式短参数
	FlagJSONShort = "j"

	// FlagReleaseShort 发布模式短参数
	FlagReleaseShort = "r"

	// FlagLocalOnlyShort 仅使用本地限流器短参数
	FlagLocalOnlyShort = "l"
)

const (
	// Default configuration values - 配置默认值

	// DefaultAddress 默认绑定地址
	DefaultAddress = "0.0.0.0"

	// DefaultGatewayPort 默认网关端口
	DefaultGatewayPort = 8080

	// DefaultAdminPort 默认管理端口
	DefaultAdminPort = 9000

	// DefaultIdleTimeout 默认空闲超时（毫秒）
	DefaultIdleTimeout = 60000

	// DefaultReadTimeout 默认读取超时（毫秒）
	DefaultReadTimeout = 30000

	// DefaultWriteTimeout 默认写入超时（毫秒）
	DefaultWriteTimeout = 30000

	// DefaultConnectTimeout 默认连接超时（毫秒）
	DefaultConnectTimeout = 10000

	// DefaultForwardRequestTimeout 默认转发请求超时（毫秒）
	DefaultForwardRequestTimeout = 300000

	// DefaultKeepAlive 默认Keep-Alive时间（毫秒）
	DefaultKeepAlive = 60000

	// DefaultIdleTotal 默认总空闲连接数
	DefaultIdleTotal = 100

	// DefaultIdlePerHost 默认每主机空闲连接数
	DefaultIdlePerHost = 10

	// DefaultMaxPerHost 默认每主机最大连接数
	DefaultMaxPerHost = 50

	// DefaultMaxBuckets 本地桶存储的软上限
	DefaultMaxBuckets = 10000

	// DefaultStoreShards 本地桶存储的分片数
	DefaultStoreShards = 32

	// DefaultBackendKeyPrefix 远程存储键前缀
	DefaultBackendKeyPrefix = "ratelimit:"

	// DefaultBackendTimeout 远程存储单次往返超时（毫秒）
	DefaultBackendTimeout = 500

	// DefaultBreakerName 默认熔断器名称
	DefaultBreakerName = "ratelimit-backend"

	// DefaultBreakerThreshold 默认熔断器阈值
	DefaultBreakerThreshold = 0.5

	// DefaultBreakerMinRequests 熔断判定所需的最小请求数
	DefaultBreakerMinRequests = 5

	// DefaultBreakerCooldown 默认熔断器冷却时间（毫秒）
	DefaultBreakerCooldown = 30000

	// DefaultBreakerMaxRequests 默认熔断器最大请求数
	DefaultBreakerMaxRequests = 3

	// DefaultBreakerInterval 默认熔断器间隔（毫秒）
	DefaultBreakerInterval = 10000
)

const (
	// Backend environment variables - 远程存储环境变量

	// EnvUpstashURL Upstash REST 地址
	EnvUpstashURL = "UPSTASH_REDIS_REST_URL"

	// EnvUpstashToken Upstash REST 令牌
	EnvUpstashToken = "UPSTASH_REDIS_REST_TOKEN"

	// EnvRedisURL 连接式 Redis 地址
	EnvRedisURL = "REDIS_URL"

	// EnvRedisPassword 连接式 Redis 密码
	EnvRedisPassword = "REDIS_PASSWORD"
)
