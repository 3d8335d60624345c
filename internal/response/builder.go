// Package response 提供基于httptool.BaseHttpResponse的统一HTTP响应格式
//
// 管理接口和配置错误使用 httptool 信封格式；限流拒绝使用固定的独立格式，
// 以便客户端直接读取 retryAfter：
//
//	response.Success(stats).JSON(c, http.StatusOK)
//	response.Error(CodeNotFound, "bucket not found").WithDetail(key).JSON(c, http.StatusNotFound)
//	response.Rejected(c, "Rate limit exceeded. Please try again later.", 30)
package response

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"github.com/shengyanli1982/toolkit/pkg/httptool"
)

// 响应代码常量定义
const (
	// CodeSuccess 表示操作成功
	CodeSuccess = 0

	// 1000-1999: 客户端错误
	CodeBadRequest = 1000 // 请求参数错误
	CodeNotFound   = 1003 // 资源未找到

	// 2000-2999: 服务器错误
	CodeBadGateway = 2001 // 网关错误

	// 3000-3999: 限流配置错误
	CodeConfiguration = 3000 // 限流规则配置错误
)

// ResponseBuilder 是基于httptool.BaseHttpResponse的统一响应构建器
type ResponseBuilder struct {
	response *httptool.BaseHttpResponse
}

// Success 创建成功响应构建器
func Success(data interface{}) *ResponseBuilder {
	return &ResponseBuilder{
		response: &httptool.BaseHttpResponse{
			Code: CodeSuccess,
			Data: data,
		},
	}
}

// Error 创建错误响应构建器
func Error(code int64, message string) *ResponseBuilder {
	return &ResponseBuilder{
		response: &httptool.BaseHttpResponse{
			Code:         code,
			ErrorMessage: message,
		},
	}
}

// WithDetail 添加错误详细信息，支持链式调用
func (r *ResponseBuilder) WithDetail(detail interface{}) *ResponseBuilder {
	r.response.ErrorDetail = detail
	return r
}

// JSON 将响应输出为JSON格式到gin.Context
func (r *ResponseBuilder) JSON(c *gin.Context, httpStatus int) {
	c.JSON(httpStatus, r.response)
}

// GetResponse 获取底层的BaseHttpResponse对象
func (r *ResponseBuilder) GetResponse() *httptool.BaseHttpResponse {
	return r.response
}

// OK 返回标准的成功响应（HTTP 200）
func OK(c *gin.Context, data interface{}) {
	Success(data).JSON(c, http.StatusOK)
}

// NotFound 返回资源未找到错误响应（HTTP 404）
func NotFound(c *gin.Context, message string) {
	Error(CodeNotFound, message).JSON(c, http.StatusNotFound)
}

// BadRequest 返回客户端请求错误响应（HTTP 400）
func BadRequest(c *gin.Context, message string) {
	Error(CodeBadRequest, message).JSON(c, http.StatusBadRequest)
}

// ConfigurationError 返回限流规则配置错误响应（HTTP 500）
func ConfigurationError(c *gin.Context, err error) {
	Error(CodeConfiguration, constants.ErrMsgConfiguration).
		WithDetail(err.Error()).
		JSON(c, http.StatusInternalServerError)
}

// BadGateway 返回网关错误响应（HTTP 502）
func BadGateway(c *gin.Context, message string) {
	Error(CodeBadGateway, message).JSON(c, http.StatusBadGateway)
}

// RejectionBody 限流拒绝响应体
type RejectionBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter"`
}

// Rejection 构造限流拒绝响应体
func Rejection(message string, retryAfterSeconds int64) RejectionBody {
	return RejectionBody{
		Error:      constants.RateLimitExceededError,
		Code:       constants.RateLimitExceededCode,
		Message:    message,
		RetryAfter: retryAfterSeconds,
	}
}

// Rejected 输出 HTTP 429 限流拒绝响应
func Rejected(c *gin.Context, message string, retryAfterSeconds int64) {
	c.JSON(http.StatusTooManyRequests, Rejection(message, retryAfterSeconds))
}

// WriteJSON 向 http.ResponseWriter 输出 JSON，用于 gin 之外的处理器
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set(constants.HeaderContentType, "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
