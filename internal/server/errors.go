package server

import (
	"errors"

	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// 服务器相关错误定义
var (
	// 服务器状态错误
	ErrServerAlreadyStarted = errors.New(constants.ErrMsgServerAlreadyStarted)

	// 装配错误
	ErrNilConfig     = errors.New("server config is required")
	ErrNilChecker    = errors.New("rate limit checker is required")
	ErrUnknownPreset = errors.New("unknown rate limit preset")
)
