package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"onlinelibrary_go/config"
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthConfig 认证配置
type AuthConfig struct {
	MaxLoginAttempts     int           // 最大登录失败次数
	LoginBlockDuration   time.Duration // 登录封禁时长
	RegisterLimitPerHour int           // 每个IP每小时最大注册次数
}

// AuthService 认证服务
type AuthService struct {
	jwtService *config.JWTService
	authConfig *AuthConfig
}

// NewAuthService 创建认证服务实例
func NewAuthService() *AuthService {
	return &AuthService{
		jwtService: config.GetJWTService(),
		authConfig: &AuthConfig{
			MaxLoginAttempts:     config.GetEnvInt("MAX_LOGIN_ATTEMPTS", 5),
			LoginBlockDuration:   config.GetEnvDuration("LOGIN_BLOCK_DURATION", 15*time.Minute),
			RegisterLimitPerHour: config.GetEnvInt("REGISTER_LIMIT_PER_HOUR", 10),
		},
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username  string     `json:"username" binding:"required,username"`
	Password  string     `json:"password" binding:"required,min=8,max=100"`
	FirstName string     `json:"first_name" binding:"required,max=30,personname"`
	LastName  string     `json:"last_name" binding:"required,max=150,personname"`
	Email     string     `json:"email" binding:"required,email,max=150"`
	Address   string     `json:"address" binding:"max=300"`
	Birthday  *time.Time `json:"birthday"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ==================== 注册相关方法 ====================

// Register 用户注册
func (as *AuthService) Register(req *RegisterRequest, clientIP string) (*models.User, string, error) {
	// 1. 检查注册频率限制（使用Redis）
	if config.RedisClient != nil {
		ctx, cancel := redisContext()
		count, _ := config.RedisClient.Get(ctx, registerLimitKey(clientIP)).Int64()
		cancel()
		if count >= int64(as.authConfig.RegisterLimitPerHour) {
			return nil, "", forbidden("too many registration attempts, please try again later")
		}
	}

	// 2. 检查用户名是否已存在
	var existing int64
	if err := config.DB.Model(&models.User{}).Where("username = ?", req.Username).Count(&existing).Error; err != nil {
		return nil, "", fmt.Errorf("failed to check username: %w", err)
	}
	if existing > 0 {
		return nil, "", conflict("username already exists")
	}

	// 3. 密码加密
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	// 4. 创建用户（默认为普通用户、公开主页、余额为0）
	user := models.User{
		Username:           req.Username,
		FirstName:          strings.TrimSpace(req.FirstName),
		LastName:           strings.TrimSpace(req.LastName),
		Email:              req.Email,
		Address:            req.Address,
		Birthday:           req.Birthday,
		Password:           string(hashedPassword),
		AuthorizationLevel: models.LevelBasic,
		PrivacyLevel:       models.PrivacyPublic,
	}
	if err := config.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", conflict("username already exists")
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	// 5. 增加注册计数并记录统计
	if config.RedisClient != nil {
		ctx, cancel := redisContext()
		key := registerLimitKey(clientIP)
		config.RedisClient.Incr(ctx, key)
		config.RedisClient.Expire(ctx, key, time.Hour)
		config.RedisClient.Incr(ctx, fmt.Sprintf("stats:register:%s", time.Now().Format("2006-01-02")))
		cancel()
	}

	// 6. 生成JWT token
	token, err := as.issueToken(&user)
	if err != nil {
		return nil, "", err
	}

	middleware.InfoLogger("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return &user, token, nil
}

// ==================== 登录相关方法 ====================

// Login 用户登录（被封禁的用户仍可登录，但只能浏览）
func (as *AuthService) Login(req *LoginRequest, clientIP string) (*models.User, string, error) {
	limitKey := loginLimitKey(req.Username, clientIP)

	// 1. 检查登录失败次数
	if config.RedisClient != nil {
		ctx, cancel := redisContext()
		attempts, _ := config.RedisClient.Get(ctx, limitKey).Int64()
		cancel()
		if attempts >= int64(as.authConfig.MaxLoginAttempts) {
			return nil, "", forbidden("too many failed login attempts, try again in %v", as.authConfig.LoginBlockDuration)
		}
	}

	// 2. 查找用户并验证密码
	var user models.User
	err := config.DB.Where("username = ?", req.Username).First(&user).Error
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password))
	}
	if err != nil {
		as.recordLoginFailure(limitKey)
		return nil, "", fmt.Errorf("invalid username or password: %w", ErrUnauthorized)
	}

	// 3. 更新最后登录时间
	now := time.Now()
	if err := config.DB.Model(&user).Update("last_login", &now).Error; err != nil {
		middleware.WarnLogger("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin = &now

	// 4. 清除登录失败记录
	if config.RedisClient != nil {
		ctx, cancel := redisContext()
		config.RedisClient.Del(ctx, limitKey)
		cancel()
	}

	// 5. 生成JWT token
	token, err := as.issueToken(&user)
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// recordLoginFailure 记录一次登录失败
func (as *AuthService) recordLoginFailure(limitKey string) {
	if config.RedisClient == nil {
		return
	}
	ctx, cancel := redisContext()
	defer cancel()
	if count, err := config.RedisClient.Incr(ctx, limitKey).Result(); err == nil && count == 1 {
		config.RedisClient.Expire(ctx, limitKey, as.authConfig.LoginBlockDuration)
	}
}

// ==================== Token相关方法 ====================

// RefreshToken 刷新token，旧token随即注销
func (as *AuthService) RefreshToken(tokenString string) (string, error) {
	// 1. 校验旧token
	claims, err := as.sessionClaims(tokenString)
	if err != nil {
		return "", err
	}

	// 2. 以数据库中的当前信息签发新token
	user, err := findUserByID(config.DB, claims.UserID)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrUnauthorized)
	}
	newToken, err := as.issueToken(user)
	if err != nil {
		return "", err
	}

	// 3. 注销旧token
	as.revoke(claims)
	return newToken, nil
}

// Logout 用户登出
func (as *AuthService) Logout(tokenString string) error {
	claims, err := as.sessionClaims(tokenString)
	if err != nil {
		return err
	}
	as.revoke(claims)
	return nil
}

// IsTokenRevoked token是否已被注销（Redis不可用时视为未注销）
func IsTokenRevoked(tokenString string) bool {
	claims, err := config.GetJWTService().ValidateToken(tokenString)
	if err != nil {
		return false
	}
	ctx, cancel := redisContext()
	defer cancel()
	revoked, err := config.GetJWTService().IsRevoked(ctx, claims)
	if err != nil {
		middleware.WarnLogger("failed to check token revocation", zap.Error(err))
	}
	return revoked
}

// sessionClaims 校验token且未被注销
func (as *AuthService) sessionClaims(tokenString string) (*config.SessionClaims, error) {
	claims, err := as.jwtService.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnauthorized)
	}
	ctx, cancel := redisContext()
	defer cancel()
	if revoked, _ := as.jwtService.IsRevoked(ctx, claims); revoked {
		return nil, fmt.Errorf("token has been revoked: %w", ErrUnauthorized)
	}
	return claims, nil
}

func (as *AuthService) revoke(claims *config.SessionClaims) {
	ctx, cancel := redisContext()
	defer cancel()
	if err := as.jwtService.Revoke(ctx, claims); err != nil {
		middleware.WarnLogger("failed to revoke token", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}

// issueToken 为用户签发token
func (as *AuthService) issueToken(user *models.User) (string, error) {
	token, err := as.jwtService.GenerateToken(user)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// ==================== 管理员账号 ====================

// CreateModerator 创建管理员账号；用户名已存在时将其提升为管理员并重置密码
func (as *AuthService) CreateModerator(username, password, email string) (*models.User, error) {
	if username == "" || len(password) < 8 {
		return nil, invalidInput("username is required and password must be at least 8 characters")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user models.User
	err = config.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("username = ?", username).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				Username:           username,
				FirstName:          username,
				LastName:           "Moderator",
				Email:              email,
				Password:           string(hashedPassword),
				AuthorizationLevel: models.LevelModerator,
			}
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		user.AuthorizationLevel = models.LevelModerator
		user.Password = string(hashedPassword)
		return tx.Model(&user).Updates(map[string]interface{}{
			"authorization_level": models.LevelModerator,
			"password":            user.Password,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create moderator: %w", err)
	}
	return &user, nil
}

func registerLimitKey(ip string) string {
	return fmt.Sprintf("register:limit:%s", ip)
}

func loginLimitKey(username, ip string) string {
	return fmt.Sprintf("login:limit:%s:%s", username, ip)
}
