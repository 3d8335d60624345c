package constants

const (
	// Error messages - 错误消息

	// ErrMsgServerAlreadyStarted 服务器已启动错误消息
	ErrMsgServerAlreadyStarted = "server already started"

	// ErrMsgNilRequest 空请求错误消息
	ErrMsgNilRequest = "request cannot be nil"

	// ErrMsgConfiguration 限流配置错误消息
	ErrMsgConfiguration = "rate limit configuration error"

	// ErrMsgUserRequired 缺少用户上下文
	ErrMsgUserRequired = "user context required for user-based rate limiting"

	// ErrMsgOrganizationRequired 缺少组织上下文
	ErrMsgOrganizationRequired = "organization context required for org-based rate limiting"

	// ErrMsgKeyGeneratorRequired 缺少自定义键生成器
	ErrMsgKeyGeneratorRequired = "custom key generator required for custom rate limiting"

	// ErrMsgUnknownKeyType 未知键类型
	ErrMsgUnknownKeyType = "unknown rate limit key type"

	// ErrMsgInvalidRequests 无效请求数
	ErrMsgInvalidRequests = "requests must be greater than 0"

	// ErrMsgInvalidWindow 无效窗口
	ErrMsgInvalidWindow = "window must be greater than 0"

	// ErrMsgBackendNotConfigured 未配置远程存储
	ErrMsgBackendNotConfigured = "remote store not configured"

	// ErrMsgBackendInitFailed 远程存储创建失败
	ErrMsgBackendInitFailed = "remote store initialization failed"

	// ErrMsgBackendClosed 远程存储已关闭
	ErrMsgBackendClosed = "remote store is closed"

	// ErrMsgMalformedResponse 远程存储响应格式错误
	ErrMsgMalformedResponse = "malformed remote store response"
)

const (
	// Fallback reasons for metrics - 降级原因

	// FallbackNotConfigured 未配置远程存储
	FallbackNotConfigured = "not_configured"

	// FallbackBackendError 远程存储调用失败
	FallbackBackendError = "backend_error"

	// FallbackBreakerOpen 熔断器开启
	FallbackBreakerOpen = "breaker_open"
)
