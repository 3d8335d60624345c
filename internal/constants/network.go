package constants

const (
	// Protocol names for validation - 协议名称用于验证

	// ProtocolHTTP HTTP协议名称
	ProtocolHTTP = "http"

	// ProtocolHTTPS HTTPS协议名称
	ProtocolHTTPS = "https"
)

const (
	// HTTP headers - HTTP头部

	// HeaderUserAgent User-Agent头部名称
	HeaderUserAgent = "User-Agent"

	// HeaderAuthorization Authorization头部名称
	HeaderAuthorization = "Authorization"

	// HeaderContentType Content-Type头部名称
	HeaderContentType = "Content-Type"

	// HeaderXForwardedFor 客户端转发链
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderXRealIP 反向代理设置的真实 IP
	HeaderXRealIP = "X-Real-IP"

	// HeaderCFConnectingIP Cloudflare 设置的客户端 IP
	HeaderCFConnectingIP = "CF-Connecting-IP"

	// HeaderRateLimitLimit 配额上限
	HeaderRateLimitLimit = "X-RateLimit-Limit"

	// HeaderRateLimitRemaining 剩余配额
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	// HeaderRateLimitReset 配额重置时间（Unix 毫秒）
	HeaderRateLimitReset = "X-RateLimit-Reset"

	// HeaderRetryAfter 重试等待秒数
	HeaderRetryAfter = "Retry-After"

	// HeaderUserID 上游认证层注入的用户标识
	HeaderUserID = "X-User-ID"

	// HeaderOrganizationID 上游认证层注入的组织标识
	HeaderOrganizationID = "X-Organization-ID"
)

const (
	// Authentication types - 认证类型

	// AuthTypeNone 无认证类型
	AuthTypeNone = "none"

	// AuthTypeBearer Bearer令牌认证类型
	AuthTypeBearer = "bearer"

	// BearerPrefix Bearer令牌前缀
	BearerPrefix = "Bearer "
)

const (
	// UnknownClientIP 无法识别客户端 IP 时使用的占位值
	UnknownClientIP = "unknown"

	// RateLimitExceededCode 限流拒绝响应中的错误码
	RateLimitExceededCode = "RATE_LIMIT_EXCEEDED"

	// RateLimitExceededError 限流拒绝响应中的错误描述
	RateLimitExceededError = "Too many requests"
)

const (
	// Header operations - 头部操作

	// HeaderOpInsert 头部不存在时插入
	HeaderOpInsert = "insert"

	// HeaderOpReplace 覆盖或新建头部
	HeaderOpReplace = "replace"

	// HeaderOpRemove 删除头部
	HeaderOpRemove = "remove"
)
