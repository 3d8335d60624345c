// Package client 提供出站 HTTP 连接池，供上游转发和 REST 存储访问共用
package client

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// ConnectionPool 连接池管理器
type ConnectionPool struct {
	transport *http.Transport
	config    *config.HTTPClientConfig
}

// NewConnectionPool 创建新的连接池实例，cfg 为 nil 时使用默认参数
func NewConnectionPool(cfg *config.HTTPClientConfig) *ConnectionPool {
	if cfg == nil {
		cfg = &config.HTTPClientConfig{
			Agent:     constants.UserAgent,
			KeepAlive: constants.DefaultKeepAlive,
		}
	}

	keepAlive := time.Duration(cfg.KeepAlive) * time.Millisecond
	dialer := &net.Dialer{
		Timeout:   time.Duration(constants.DefaultConnectTimeout) * time.Millisecond,
		KeepAlive: keepAlive,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: 30 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		// KeepAlive为0时禁用Keep-Alive
		DisableKeepAlives: cfg.KeepAlive == 0,

		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          constants.DefaultIdleTotal,
		MaxIdleConnsPerHost:   constants.DefaultIdlePerHost,
		MaxConnsPerHost:       constants.DefaultMaxPerHost,
	}

	if cfg.Connect != nil {
		transport.MaxIdleConns = cfg.Connect.IdleTotal
		transport.MaxIdleConnsPerHost = cfg.Connect.IdlePerHost
		transport.MaxConnsPerHost = cfg.Connect.MaxPerHost
	}

	if cfg.Timeout != nil {
		if cfg.Timeout.Connect > 0 {
			dialer.Timeout = time.Duration(cfg.Timeout.Connect) * time.Millisecond
		}
		if cfg.Timeout.Request > 0 {
			transport.ResponseHeaderTimeout = time.Duration(cfg.Timeout.Request) * time.Millisecond
		}
		if cfg.Timeout.Idle > 0 {
			transport.IdleConnTimeout = time.Duration(cfg.Timeout.Idle) * time.Millisecond
		}
	}

	transport.DialContext = dialer.DialContext

	return &ConnectionPool{
		transport: transport,
		config:    cfg,
	}
}

// RoundTripper 返回设置 User-Agent 的传输层
func (p *ConnectionPool) RoundTripper() http.RoundTripper {
	agent := p.config.Agent
	if agent == "" {
		agent = constants.UserAgent
	}
	return &agentTransport{agent: agent, next: p.transport}
}

// Client 返回使用连接池的HTTP客户端，timeout 为整个请求的超时
func (p *ConnectionPool) Client(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: p.RoundTripper(),
		Timeout:   timeout,
	}
}

// Close 关闭连接池
func (p *ConnectionPool) Close() error {
	p.transport.CloseIdleConnections()
	return nil
}

// agentTransport 为未设置 User-Agent 的请求补充默认值
type agentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(constants.HeaderUserAgent) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(constants.HeaderUserAgent, t.agent)
	}
	return t.next.RoundTrip(req)
}
