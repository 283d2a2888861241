package controllers

import (
	"errors"

	"onlinelibrary_go/middleware"
	"onlinelibrary_go/services"
	"onlinelibrary_go/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError 将服务层错误映射为响应码，未分类的错误记录日志并返回500
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.NotFound(c, err.Error())
	case errors.Is(err, services.ErrForbidden):
		utils.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrConflict):
		utils.Conflict(c, err.Error())
	case errors.Is(err, services.ErrInvalidInput):
		utils.ValidationFailed(c, err)
	case errors.Is(err, services.ErrUnauthorized):
		utils.Unauthorized(c, err.Error())
	default:
		middleware.ErrorLogger("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("user_id", c.GetString(middleware.ContextUserID)),
			zap.Error(err),
		)
		utils.InternalError(c, "")
	}
}

// bindJSON 绑定并校验请求体，失败时直接写响应并返回false
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := utils.BindAndValidate(c, obj); err != nil {
		var ve *utils.ValidationError
		if errors.As(err, &ve) {
			utils.ValidationFailed(c, ve)
		} else {
			utils.BadRequest(c, err.Error())
		}
		return false
	}
	return true
}
