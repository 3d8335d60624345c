package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"gopkg.in/yaml.v3"
)

// 全局验证器实例，用于配置验证
var validate = validator.New()

// PresetLookup 判断限流预置配置名称是否存在
type PresetLookup func(name string) bool

// ManagerOption 配置管理器选项
type ManagerOption func(*Manager)

// WithPresetLookup 设置预置配置查找函数，用于校验路由引用
func WithPresetLookup(lookup PresetLookup) ManagerOption {
	return func(m *Manager) {
		m.presetLookup = lookup
	}
}

// Manager 代表配置管理器，负责配置文件的加载、验证和管理
type Manager struct {
	config       *Config             // 当前加载的配置实例
	configPath   string              // 配置文件的绝对路径
	validator    *validator.Validate // 配置验证器
	presetLookup PresetLookup        // 预置配置查找函数
}

// NewManager 创建新的配置管理器实例
func NewManager(opts ...ManagerOption) (*Manager, error) {
	if err := validate.RegisterValidation("auth_conditional", validateAuthConditional); err != nil {
		return nil, err
	}
	if err := validate.RegisterValidation("http_url", validateHTTPURL); err != nil {
		return nil, err
	}

	m := &Manager{
		validator: validate,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// LoadFromFile 从指定路径加载配置文件并进行验证
func (m *Manager) LoadFromFile(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := m.Load(data); err != nil {
		return err
	}

	m.configPath, _ = filepath.Abs(configPath)
	return nil
}

// Load 解析并验证 YAML 配置内容
func (m *Manager) Load(data []byte) error {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	m.SetDefaults(&config)

	if err := m.validator.Struct(&config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := m.validateReferences(&config); err != nil {
		return fmt.Errorf("config reference validation failed: %w", err)
	}

	m.config = &config
	return nil
}

// validateReferences 验证路由名称、路由路径和预置配置引用
func (m *Manager) validateReferences(config *Config) error {
	names := make(map[string]bool, len(config.Routes))
	paths := make(map[string]bool, len(config.Routes))

	for _, route := range config.Routes {
		if names[route.Name] {
			return fmt.Errorf("duplicate route name '%s'", route.Name)
		}
		names[route.Name] = true

		endpoint := route.Method + " " + route.Path
		if paths[endpoint] {
			return fmt.Errorf("route '%s' duplicates endpoint '%s'", route.Name, endpoint)
		}
		paths[endpoint] = true

		if m.presetLookup == nil {
			continue
		}
		for _, preset := range route.Presets {
			if !m.presetLookup(preset) {
				return fmt.Errorf("route '%s' references unknown preset '%s'", route.Name, preset)
			}
		}
	}

	if gw, admin := config.HTTPServer.Gateway, config.HTTPServer.Admin; gw.Port == admin.Port && gw.Address == admin.Address {
		return fmt.Errorf("gateway and admin servers cannot share %s:%d", gw.Address, gw.Port)
	}

	return nil
}

// GetConfig 返回当前加载的配置实例
func (m *Manager) GetConfig() *Config {
	return m.config
}

// GetConfigPath 返回当前配置文件的绝对路径
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetDefaults 为配置设置默认值，确保所有必需字段都有合理的默认值
func (m *Manager) SetDefaults(config *Config) {
	setServerDefaults(&config.HTTPServer.Gateway, constants.DefaultGatewayPort)
	setServerDefaults(&config.HTTPServer.Admin, constants.DefaultAdminPort)
	m.setStoreDefaults(&config.Store)
	m.setBackendDefaults(&config.Backend)
	m.setRouteDefaults(config)
}

// setServerDefaults 设置单个HTTP服务的默认值
func setServerDefaults(server *ServerConfig, port int) {
	if server.Port == 0 {
		server.Port = port
	}
	if server.Address == "" {
		server.Address = constants.DefaultAddress
	}
	if server.Timeout == nil {
		server.Timeout = &TimeoutConfig{}
	}
	setTimeoutDefaults(server.Timeout)
}

// setTimeoutDefaults 为值为0的超时字段设置默认值
func setTimeoutDefaults(timeout *TimeoutConfig) {
	if timeout.Idle == 0 {
		timeout.Idle = constants.DefaultIdleTimeout
	}
	if timeout.Read == 0 {
		timeout.Read = constants.DefaultReadTimeout
	}
	if timeout.Write == 0 {
		timeout.Write = constants.DefaultWriteTimeout
	}
	if timeout.Connect == 0 {
		timeout.Connect = constants.DefaultConnectTimeout
	}
	if timeout.Request == 0 {
		timeout.Request = constants.DefaultForwardRequestTimeout
	}
}

// setHTTPClientDefaults 设置HTTP客户端默认值，client 为 nil 时返回新的默认配置
func setHTTPClientDefaults(client *HTTPClientConfig) *HTTPClientConfig {
	if client == nil {
		client = &HTTPClientConfig{}
	}
	if client.Agent == "" {
		client.Agent = constants.UserAgent
	}
	if client.KeepAlive == 0 {
		client.KeepAlive = constants.DefaultKeepAlive
	}
	if client.Connect == nil {
		client.Connect = &ConnectConfig{}
	}
	if client.Connect.IdleTotal == 0 {
		client.Connect.IdleTotal = constants.DefaultIdleTotal
	}
	if client.Connect.IdlePerHost == 0 {
		client.Connect.IdlePerHost = constants.DefaultIdlePerHost
	}
	if client.Connect.MaxPerHost == 0 {
		client.Connect.MaxPerHost = constants.DefaultMaxPerHost
	}
	if client.Timeout == nil {
		client.Timeout = &TimeoutConfig{}
	}
	setTimeoutDefaults(client.Timeout)
	return client
}

// setStoreDefaults 设置本地桶存储默认值
func (m *Manager) setStoreDefaults(store *StoreConfig) {
	if store.MaxBuckets == 0 {
		store.MaxBuckets = constants.DefaultMaxBuckets
	}
	if store.Shards == 0 {
		store.Shards = constants.DefaultStoreShards
	}
}

// setBackendDefaults 设置远程存储默认值
func (m *Manager) setBackendDefaults(backend *BackendConfig) {
	if backend.KeyPrefix == "" {
		backend.KeyPrefix = constants.DefaultBackendKeyPrefix
	}
	if backend.Timeout == 0 {
		backend.Timeout = constants.DefaultBackendTimeout
	}
	if backend.Breaker == nil {
		backend.Breaker = &BreakerConfig{}
	}
	if backend.Breaker.Threshold == 0 {
		backend.Breaker.Threshold = constants.DefaultBreakerThreshold
	}
	if backend.Breaker.Cooldown == 0 {
		backend.Breaker.Cooldown = constants.DefaultBreakerCooldown
	}
	if backend.Breaker.MaxRequests == 0 {
		backend.Breaker.MaxRequests = constants.DefaultBreakerMaxRequests
	}
	if backend.Breaker.Interval == 0 {
		backend.Breaker.Interval = constants.DefaultBreakerInterval
	}
	backend.HTTPClient = setHTTPClientDefaults(backend.HTTPClient)
}

// setRouteDefaults 设置路由默认值
func (m *Manager) setRouteDefaults(config *Config) {
	for i := range config.Routes {
		route := &config.Routes[i]
		if route.Method == "" {
			route.Method = "ANY"
		}
		route.Method = strings.ToUpper(route.Method)
		if route.Upstream == nil {
			continue
		}
		if route.Upstream.Auth == nil {
			route.Upstream.Auth = &AuthConfig{Type: constants.AuthTypeNone}
		} else if route.Upstream.Auth.Type == "" {
			route.Upstream.Auth.Type = constants.AuthTypeNone
		}
		route.Upstream.HTTPClient = setHTTPClientDefaults(route.Upstream.HTTPClient)
	}
}

// validateAuthConditional 验证认证配置的条件必填字段
func validateAuthConditional(fl validator.FieldLevel) bool {
	auth, ok := fl.Parent().Interface().(AuthConfig)
	if !ok {
		return true
	}

	switch auth.Type {
	case constants.AuthTypeBearer:
		return auth.Token != ""
	case constants.AuthTypeNone, "":
		return true
	default:
		return false
	}
}

// validateHTTPURL 验证URL必须使用HTTP或HTTPS协议
func validateHTTPURL(fl validator.FieldLevel) bool {
	urlStr := fl.Field().String()
	if urlStr == "" {
		return false
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != constants.ProtocolHTTP && scheme != constants.ProtocolHTTPS {
		return false
	}

	return parsedURL.Host != ""
}
