package response

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/bookstore/pkg/apperr"
	"github.com/d60-Lab/bookstore/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: "OK", Message: "success", Data: data})
}

// BadRequest 参数错误
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: string(apperr.CodeValidation), Message: msg})
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Code: "UNAUTHORIZED", Message: msg})
}

// Forbidden 无权限
func Forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Response{Code: string(apperr.CodeForbidden), Message: msg})
}

// TooManyRequests 限流
func TooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{Code: "RATE_LIMITED", Message: "too many requests"})
}

// InternalError 服务器内部错误，不向调用方暴露细节
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error",
		zap.Error(err),
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
	)
	if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	c.JSON(http.StatusInternalServerError, Response{Code: string(apperr.CodeInternal), Message: "internal server error"})
}

// Error 按错误分类映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		InternalError(c, err)
		return
	}
	msg := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	c.JSON(StatusOf(code), Response{Code: string(code), Message: msg, Reason: apperr.ReasonOf(err)})
}

// StatusOf 错误码到 HTTP 状态码
func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
