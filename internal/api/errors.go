package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	// 通用错误码
	ErrCodeInvalidRequest = "ERR_INVALID_REQUEST"
	ErrCodeNotFound       = "ERR_NOT_FOUND"
	ErrCodeInternalError  = "ERR_INTERNAL_ERROR"
	ErrCodeMissingField   = "ERR_MISSING_FIELD"

	// 上游服务商错误码
	ErrCodeUpstreamProtocol = "ERR_UPSTREAM_PROTOCOL"
	ErrCodeUpstreamRejected = "ERR_UPSTREAM_REJECTED"
	ErrCodeTaskNotFound     = "ERR_TASK_NOT_FOUND"

	// 业务逻辑错误码
	ErrCodeSongNotFound     = "ERR_SONG_NOT_FOUND"
	ErrCodeGenerationFailed = "ERR_GENERATION_FAILED"
	ErrCodeDownloadFailed   = "ERR_DOWNLOAD_FAILED"
	ErrCodeUploadFailed     = "ERR_UPLOAD_FAILED"
	ErrCodeDatabaseError    = "ERR_DATABASE_ERROR"
)

// APIError 统一的 API 错误响应结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse 返回统一格式的错误响应
func ErrorResponse(c *gin.Context, status int, code string, message string) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
	})
}

// ErrorResponseWithDetails 返回带详情的错误响应
func ErrorResponseWithDetails(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// 常用错误响应快捷函数

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadRequest, code, message)
}

// NotFound 404 资源不存在
func NotFound(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusNotFound, code, message)
}

// InternalError 500 服务器内部错误
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// BadGateway 502 上游服务商异常
func BadGateway(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadGateway, code, message)
}

// MissingField 缺少必填字段
func MissingField(c *gin.Context, field string) {
	ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeMissingField, field+" is required", gin.H{"field": field})
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request payload")
}
