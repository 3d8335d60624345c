// Package auth 为出站请求（上游转发、REST 存储访问）附加认证信息
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// 认证相关错误定义
var (
	ErrEmptyToken      = errors.New("bearer token cannot be empty")
	ErrInvalidAuthType = errors.New("invalid auth type")
	ErrNilRequest      = errors.New(constants.ErrMsgNilRequest)
)

// Authenticator 代表认证器接口，定义HTTP请求认证的行为
type Authenticator interface {
	// Apply 将认证信息应用到HTTP请求中
	Apply(req *http.Request) error

	// Type 获取认证器类型
	Type() string
}

// bearerAuthenticator 代表Bearer Token认证实现
type bearerAuthenticator struct {
	header string
}

// NewBearerAuthenticator 创建新的Bearer Token认证器
func NewBearerAuthenticator(token string) (Authenticator, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	return &bearerAuthenticator{header: constants.BearerPrefix + token}, nil
}

// Apply 设置Authorization头部为Bearer Token格式
func (a *bearerAuthenticator) Apply(req *http.Request) error {
	if req == nil {
		return ErrNilRequest
	}
	req.Header.Set(constants.HeaderAuthorization, a.header)
	return nil
}

// Type 获取认证器类型
func (a *bearerAuthenticator) Type() string {
	return constants.AuthTypeBearer
}

// noneAuthenticator 代表无认证实现，不修改请求
type noneAuthenticator struct{}

// NewNoneAuthenticator 创建新的无认证认证器
func NewNoneAuthenticator() Authenticator {
	return noneAuthenticator{}
}

func (noneAuthenticator) Apply(req *http.Request) error {
	if req == nil {
		return ErrNilRequest
	}
	return nil
}

func (noneAuthenticator) Type() string {
	return constants.AuthTypeNone
}

// FromConfig 根据配置创建认证器，cfg 为 nil 时不认证
func FromConfig(cfg *config.AuthConfig) (Authenticator, error) {
	if cfg == nil {
		return NewNoneAuthenticator(), nil
	}

	switch cfg.Type {
	case constants.AuthTypeNone, "":
		return NewNoneAuthenticator(), nil
	case constants.AuthTypeBearer:
		return NewBearerAuthenticator(cfg.Token)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidAuthType, cfg.Type)
	}
}
