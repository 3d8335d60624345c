package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"github.com/shengyanli1982/ratelimit-go/internal/response"
)

// ErrNilChecker 未提供限流器
var ErrNilChecker = errors.New("rate limit checker is required")

// MiddlewareOption 中间件配置选项
type MiddlewareOption func(*middleware)

// WithMiddlewareLogger 设置记录配置错误的日志记录器
func WithMiddlewareLogger(logger *logr.Logger) MiddlewareOption {
	return func(m *middleware) {
		if logger != nil {
			m.logger = *logger
		}
	}
}

type middleware struct {
	checker Checker
	configs []Config
	logger  logr.Logger
}

func newMiddleware(checker Checker, cfgs []Config, opts ...MiddlewareOption) (*middleware, error) {
	if checker == nil {
		return nil, ErrNilChecker
	}
	if len(cfgs) == 0 {
		return nil, ErrNoConfigs
	}
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	m := &middleware{
		checker: checker,
		configs: append([]Config(nil), cfgs...),
		logger:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// WithRateLimit 返回应用单条限流规则的 gin 中间件
func WithRateLimit(checker Checker, cfg Config, opts ...MiddlewareOption) (gin.HandlerFunc, error) {
	return WithMultipleRateLimits(checker, []Config{cfg}, opts...)
}

// WithMultipleRateLimits 返回同时应用多条限流规则的 gin 中间件，所有规则都放行时请求才继续
func WithMultipleRateLimits(checker Checker, cfgs []Config, opts ...MiddlewareOption) (gin.HandlerFunc, error) {
	m, err := newMiddleware(checker, cfgs, opts...)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		res, cfg, err := m.evaluate(c.Request.Context(), c.Request)
		if err != nil {
			m.logger.Error(err, "rate limit configuration error", "method", c.Request.Method, "path", c.Request.URL.Path)
			response.ConfigurationError(c, err)
			c.Abort()
			return
		}

		setHeaders(c.Writer.Header(), res)
		if !res.Allowed {
			secs := res.RetryAfterSeconds()
			c.Header(constants.HeaderRetryAfter, strconv.FormatInt(secs, 10))
			response.Rejected(c, cfg.RejectionMessage(res), secs)
			c.Abort()
			return
		}

		c.Next()
	}, nil
}

// Wrap 以 net/http 形式包装处理器
func Wrap(checker Checker, cfgs []Config, next http.Handler, opts ...MiddlewareOption) (http.Handler, error) {
	m, err := newMiddleware(checker, cfgs, opts...)
	if err != nil {
		return nil, err
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, cfg, err := m.evaluate(r.Context(), r)
		if err != nil {
			m.logger.Error(err, "rate limit configuration error", "method", r.Method, "path", r.URL.Path)
			response.WriteJSON(w, http.StatusInternalServerError, response.Error(response.CodeConfiguration, constants.ErrMsgConfiguration).
				WithDetail(err.Error()).
				GetResponse())
			return
		}

		setHeaders(w.Header(), res)
		if !res.Allowed {
			secs := res.RetryAfterSeconds()
			w.Header().Set(constants.HeaderRetryAfter, strconv.FormatInt(secs, 10))
			response.WriteJSON(w, http.StatusTooManyRequests, response.Rejection(cfg.RejectionMessage(res), secs))
			return
		}

		next.ServeHTTP(w, r)
	}), nil
}

// evaluate 依次检查所有规则，每条规则都会消费一次配额
//
// 有规则拒绝时返回重试时间最长的拒绝结果，否则返回剩余配额最少的结果。
// 每条规则的限流键只派生一次，任一规则无法派生时直接返回错误，不消费任何配额。
func (m *middleware) evaluate(ctx context.Context, req *http.Request) (Result, Config, error) {
	var (
		picked    Result
		pickedCfg Config
		rejected  bool
	)

	caller := CallerFromContext(ctx)
	keys := make([]string, len(m.configs))
	for i, cfg := range m.configs {
		key, err := ResolveKey(req, cfg, caller)
		if err != nil {
			return Result{}, cfg, err
		}
		keys[i] = key
	}

	for i, cfg := range m.configs {
		res, err := m.checker.CheckKey(ctx, cfg, keys[i])
		if err != nil {
			return Result{}, cfg, err
		}

		switch {
		case i == 0:
			picked, pickedCfg, rejected = res, cfg, !res.Allowed
		case !res.Allowed:
			if !rejected || res.RetryAfter > picked.RetryAfter {
				picked, pickedCfg = res, cfg
			}
			rejected = true
		case !rejected && res.Remaining < picked.Remaining:
			picked, pickedCfg = res, cfg
		}
	}

	return picked, pickedCfg, nil
}

func setHeaders(h http.Header, res Result) {
	h.Set(constants.HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	h.Set(constants.HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	h.Set(constants.HeaderRateLimitReset, strconv.FormatInt(res.ResetMillis(), 10))
}
