package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"onlinelibrary_go/config"
	"onlinelibrary_go/models"
	"onlinelibrary_go/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// ContextUserID 上下文中的用户ID
	ContextUserID = "user_id"
	// ContextCurrentUser 上下文中的当前用户（*models.User）
	ContextCurrentUser = "current_user"
	// ContextToken 上下文中的原始token
	ContextToken = "token"
)

var errNoToken = errors.New("missing authorization token")

// AuthMiddleware JWT认证中间件
// 每次请求都从数据库加载当前用户，权限等级变化立即生效
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, token, err := authenticate(c)
		if err != nil {
			utils.Unauthorized(c, err.Error())
			c.Abort()
			return
		}
		setCurrentUser(c, user, token)
		c.Next()
	}
}

// OptionalAuth 可选认证：携带有效token时设置当前用户，否则匿名访问
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, token, err := authenticate(c); err == nil {
			setCurrentUser(c, user, token)
		}
		c.Next()
	}
}

// RateLimit 接口限流中间件，已登录用户按用户ID计数，否则按IP
func RateLimit(limit int, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.ClientIP()
		if id := c.GetString(ContextUserID); id != "" {
			subject = id
		}
		if !utils.APIRateLimit(c, subject, limit, duration) {
			utils.TooManyRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser 获取当前登录用户，未登录返回nil
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ContextCurrentUser); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// CurrentToken 获取当前请求的token
func CurrentToken(c *gin.Context) string {
	return c.GetString(ContextToken)
}

// ExtractToken 从Authorization头或websocket的token参数中提取token
func ExtractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

func authenticate(c *gin.Context) (*models.User, string, error) {
	// 1. 提取token
	token := ExtractToken(c)
	if token == "" {
		return nil, "", errNoToken
	}

	// 2. 验证签名与有效期
	claims, err := config.GetJWTService().ValidateToken(token)
	if err != nil {
		return nil, "", errors.New("invalid or expired token")
	}

	// 3. 检查是否已注销
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	revoked, err := config.GetJWTService().IsRevoked(ctx, claims)
	cancel()
	if err != nil {
		WarnLogger("failed to check token revocation", zap.Error(err))
	}
	if revoked {
		return nil, "", errors.New("token has been revoked")
	}

	// 4. 加载当前用户
	var user models.User
	if err := config.DB.WithContext(c.Request.Context()).First(&user, "id = ?", claims.UserID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorLogger("failed to load current user", zap.String("user_id", claims.UserID), zap.Error(err))
		}
		return nil, "", errors.New("user no longer exists")
	}
	return &user, token, nil
}

func setCurrentUser(c *gin.Context, user *models.User, token string) {
	c.Set(ContextUserID, user.ID)
	c.Set(ContextCurrentUser, user)
	c.Set(ContextToken, token)
}
