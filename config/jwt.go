package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"onlinelibrary_go/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionIssuer = "onlinelibrary"

// SessionConfig 会话token配置
type SessionConfig struct {
	Secret []byte
	TTL    time.Duration
}

// LoadSessionConfig 从环境变量读取会话配置
func LoadSessionConfig() *SessionConfig {
	return &SessionConfig{
		Secret: []byte(GetEnv("JWT_SECRET", "change-me-in-production")),
		TTL:    time.Duration(GetEnvInt("JWT_EXPIRATION_HOURS", 24*7)) * time.Hour,
	}
}

// SessionClaims 会话token声明
// Level 只用于客户端展示，鉴权始终读取数据库中的当前等级
type SessionClaims struct {
	UserID   string                    `json:"uid"`
	Username string                    `json:"username"`
	Level    models.AuthorizationLevel `json:"level"`
	jwt.RegisteredClaims
}

// JWTService 签发、校验和注销会话token
type JWTService struct {
	cfg *SessionConfig
}

// NewJWTService 创建JWT服务实例
func NewJWTService() *JWTService {
	return &JWTService{cfg: LoadSessionConfig()}
}

// GenerateToken 为用户签发会话token，每个token带唯一jti
func (s *JWTService) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID:   user.ID,
		Username: user.Username,
		Level:    user.AuthorizationLevel,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    sessionIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
}

// ValidateToken 校验签名、签发者和有效期
func (s *JWTService) ValidateToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, errors.New("invalid session token: missing subject")
	}
	return claims, nil
}

// Revoke 注销token直到其自然过期；未启用Redis时无操作
func (s *JWTService) Revoke(ctx context.Context, claims *SessionClaims) error {
	if RedisClient == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return RedisClient.Set(ctx, RevocationKey(claims.ID), claims.UserID, ttl).Err()
}

// IsRevoked token是否已注销；未启用Redis时始终为false
func (s *JWTService) IsRevoked(ctx context.Context, claims *SessionClaims) (bool, error) {
	if RedisClient == nil {
		return false, nil
	}
	n, err := RedisClient.Exists(ctx, RevocationKey(claims.ID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}

// RevocationKey 已注销token在Redis中的key，按jti索引
func RevocationKey(jti string) string {
	return "session:revoked:" + jti
}

var (
	jwtService     *JWTService
	jwtServiceOnce sync.Once
)

// GetJWTService 获取JWT服务实例（全局单例）
func GetJWTService() *JWTService {
	jwtServiceOnce.Do(func() {
		jwtService = NewJWTService()
	})
	return jwtService
}
