package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"onlinelibrary_go/config"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`            // 业务状态码
	Message string      `json:"message"`         // 响应消息
	Data    interface{} `json:"data,omitempty"`  // 响应数据
	Error   string      `json:"error,omitempty"` // 错误信息
}

// PageResponse 分页响应结构
type PageResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Total   int64       `json:"total"` // 总数
	Page    int         `json:"page"`  // 当前页
	Limit   int         `json:"limit"` // 每页数量
}

// 业务状态码，前三位与HTTP状态码一致
const (
	CodeSuccess             = 20000 // 成功
	CodeError               = 40000 // 请求错误
	CodeUnauthorized        = 40100 // 未登录或token无效
	CodeForbidden           = 40300 // 权限不足或账号被封禁
	CodeNotFound            = 40400 // 资源不存在或不可见
	CodeConflict            = 40900 // 与当前状态冲突（重复评分、重复推荐等）
	CodeValidationError     = 42200 // 参数验证失败
	CodeTooManyRequests     = 42900 // 请求过于频繁
	CodeInternalServerError = 50000 // 内部错误
	CodeUnavailable         = 50300 // 依赖的组件未启用
)

var codeMessages = map[int]string{
	CodeSuccess:             "操作成功",
	CodeError:               "请求错误",
	CodeUnauthorized:        "未授权，请重新登录",
	CodeForbidden:           "禁止访问",
	CodeNotFound:            "资源不存在",
	CodeConflict:            "操作与当前状态冲突",
	CodeValidationError:     "参数验证失败",
	CodeTooManyRequests:     "请求过于频繁，请稍后再试",
	CodeInternalServerError: "服务器内部错误",
	CodeUnavailable:         "服务暂不可用",
}

// GetCodeMessage 获取状态码对应的消息
func GetCodeMessage(code int) string {
	if msg, exists := codeMessages[code]; exists {
		return msg
	}
	return "未知错误"
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, GetCodeMessage(CodeSuccess), data)
}

// SuccessWithMessage 带消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: message, Data: data})
}

// fail 写入错误响应，HTTP状态码由业务码推出，message 为空时使用默认消息
func fail(c *gin.Context, code int, message string) {
	if message == "" {
		message = GetCodeMessage(code)
	}
	c.JSON(code/100, Response{Code: code, Message: message})
}

// BadRequest 请求格式错误
func BadRequest(c *gin.Context, message string) { fail(c, CodeError, message) }

// Unauthorized 未授权
func Unauthorized(c *gin.Context, message string) { fail(c, CodeUnauthorized, message) }

// Forbidden 禁止访问
func Forbidden(c *gin.Context, message string) { fail(c, CodeForbidden, message) }

// NotFound 资源不存在
func NotFound(c *gin.Context, message string) { fail(c, CodeNotFound, message) }

// Conflict 状态冲突
func Conflict(c *gin.Context, message string) { fail(c, CodeConflict, message) }

// TooManyRequests 限流
func TooManyRequests(c *gin.Context) { fail(c, CodeTooManyRequests, "") }

// InternalError 内部错误
func InternalError(c *gin.Context, message string) { fail(c, CodeInternalServerError, message) }

// Unavailable 依赖组件未启用（如封面存储）
func Unavailable(c *gin.Context, message string) { fail(c, CodeUnavailable, message) }

// ValidationFailed 验证错误，字段错误放在 data.errors 中
func ValidationFailed(c *gin.Context, err error) {
	resp := Response{
		Code:    CodeValidationError,
		Message: GetCodeMessage(CodeValidationError),
		Error:   err.Error(),
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		resp.Data = gin.H{"errors": ve.Errors}
	}
	c.JSON(http.StatusUnprocessableEntity, resp)
}

// Paginate 分页响应
func Paginate(c *gin.Context, data interface{}, total int64, page, limit int) {
	c.JSON(http.StatusOK, PageResponse{
		Code:    CodeSuccess,
		Message: GetCodeMessage(CodeSuccess),
		Data:    data,
		Total:   total,
		Page:    page,
		Limit:   limit,
	})
}

// APIRateLimit API限流（使用Redis固定窗口计数）
func APIRateLimit(c *gin.Context, subject string, limit int, duration time.Duration) bool {
	if config.RedisClient == nil {
		return true // Redis不可用时，不限流
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()
	key := fmt.Sprintf("ratelimit:api:%s:%s", c.FullPath(), subject)

	// 使用Redis的INCR和EXPIRE实现限流
	count, err := config.RedisClient.Incr(ctx, key).Result()
	if err != nil {
		return true
	}

	// 如果是第一次请求，设置过期时间
	if count == 1 {
		config.RedisClient.Expire(ctx, key, duration)
	}

	return count <= int64(limit)
}
