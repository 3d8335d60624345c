package config

// Config 代表主配置结构体，包含HTTP服务器、本地桶存储、远程存储和路由的完整配置
type Config struct {
	HTTPServer HTTPServerConfig `yaml:"httpServer" validate:"required"`
	Store      StoreConfig      `yaml:"store"`
	Backend    BackendConfig    `yaml:"backend"`
	Routes     []RouteConfig    `yaml:"routes" validate:"required,min=1,dive"`
}

// HTTPServerConfig 代表HTTP服务器配置，包含网关服务和管理服务设置
type HTTPServerConfig struct {
	Gateway ServerConfig `yaml:"gateway"`
	Admin   ServerConfig `yaml:"admin"`
}

// ServerConfig 代表单个HTTP服务的监听参数
type ServerConfig struct {
	Port    int            `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Address string         `yaml:"address" validate:"omitempty,ip"`
	Timeout *TimeoutConfig `yaml:"timeout,omitempty"`
}

// TimeoutConfig 代表超时配置，定义各种操作的超时时间（单位：毫秒）
type TimeoutConfig struct {
	Idle    int `yaml:"idle,omitempty" validate:"omitempty,min=1000,max=86400000"`
	Read    int `yaml:"read,omitempty" validate:"omitempty,min=1000,max=86400000"`
	Write   int `yaml:"write,omitempty" validate:"omitempty,min=1000,max=86400000"`
	Connect int `yaml:"connect,omitempty" validate:"omitempty,min=1000,max=86400000"`
	Request int `yaml:"request,omitempty" validate:"omitempty,min=1000,max=86400000"`
}

// StoreConfig 代表本地令牌桶存储配置
type StoreConfig struct {
	MaxBuckets int `yaml:"maxBuckets,omitempty" validate:"omitempty,min=10,max=10000000"`
	Shards     int `yaml:"shards,omitempty" validate:"omitempty,min=1,max=4096"`
}

// BackendConfig 代表远程滑动窗口存储配置，连接参数来自环境变量
type BackendConfig struct {
	KeyPrefix  string            `yaml:"keyPrefix,omitempty"`
	Timeout    int               `yaml:"timeout,omitempty" validate:"omitempty,min=10,max=60000"` // 单位：毫秒
	Breaker    *BreakerConfig    `yaml:"breaker,omitempty"`
	HTTPClient *HTTPClientConfig `yaml:"httpClient,omitempty"`
}

// BreakerConfig 代表熔断器配置，远程存储持续失败时直接走本地限流
type BreakerConfig struct {
	Threshold   float64 `yaml:"threshold,omitempty" validate:"omitempty,min=0.01,max=1.0"`
	Cooldown    int     `yaml:"cooldown,omitempty" validate:"omitempty,min=1000,max=3600000"` // 单位：毫秒
	MaxRequests uint32  `yaml:"maxRequests,omitempty" validate:"omitempty,min=1,max=100"`
	Interval    int     `yaml:"interval,omitempty" validate:"omitempty,min=1000,max=3600000"` // 单位：毫秒
}

// RouteConfig 代表一条网关路由，按顺序应用所引用的限流预置配置
type RouteConfig struct {
	Name     string          `yaml:"name" validate:"required"`
	Method   string          `yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE ANY"`
	Path     string          `yaml:"path" validate:"required,startswith=/"`
	Presets  []string        `yaml:"presets" validate:"required,min=1,dive,required"`
	Upstream *UpstreamConfig `yaml:"upstream,omitempty"`
}

// UpstreamConfig 代表放行请求的转发目标
type UpstreamConfig struct {
	URL        string            `yaml:"url" validate:"required,http_url"`
	Auth       *AuthConfig       `yaml:"auth,omitempty"`
	Headers    []HeaderOpConfig  `yaml:"headers,omitempty" validate:"omitempty,dive"`
	HTTPClient *HTTPClientConfig `yaml:"httpClient,omitempty"`
}

// HeaderOpConfig 代表转发请求的头部操作
type HeaderOpConfig struct {
	Op    string `yaml:"op" validate:"required,oneof=insert replace remove"`
	Key   string `yaml:"key" validate:"required"`
	Value string `yaml:"value,omitempty"`
}

// AuthConfig 代表转发认证配置
type AuthConfig struct {
	Type  string `yaml:"type,omitempty" validate:"oneof='' none bearer"`
	Token string `yaml:"token,omitempty" validate:"auth_conditional"`
}

// HTTPClientConfig 代表HTTP客户端配置，控制与上游服务或 REST 存储的连接行为
type HTTPClientConfig struct {
	Agent     string         `yaml:"agent"`
	KeepAlive int            `yaml:"keepalive" validate:"min=0,max=600000"` // 单位：毫秒
	Connect   *ConnectConfig `yaml:"connect,omitempty"`
	Timeout   *TimeoutConfig `yaml:"timeout,omitempty"`
}

// ConnectConfig 代表连接池配置，控制HTTP连接的复用和管理
type ConnectConfig struct {
	IdleTotal   int `yaml:"idleTotal" validate:"min=0,max=1000"`
	IdlePerHost int `yaml:"idlePerHost" validate:"min=0,max=100"`
	MaxPerHost  int `yaml:"maxPerHost" validate:"min=0,max=500"`
}
