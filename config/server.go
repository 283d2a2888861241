package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisClient 全局 Redis 客户端；未启用或连接失败时为 nil，
// 此时缓存、token注销、事件流和限流全部降级为无操作
var RedisClient *redis.Client

// RedisConfig Redis连接配置
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// GetRedisConfig 获取Redis配置
func GetRedisConfig() *RedisConfig {
	return &RedisConfig{
		Enabled:  GetEnvBool("REDIS_ENABLED", true),
		Addr:     GetEnv("REDIS_ADDR", "localhost:6379"),
		Password: GetEnv("REDIS_PASSWORD", ""),
		DB:       GetEnvInt("REDIS_DB", 0),
		PoolSize: GetEnvInt("REDIS_POOL_SIZE", 10),
	}
}

// InitializeRedis 连接Redis并替换全局客户端
func InitializeRedis(cfg *RedisConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.PoolSize / 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	RedisClient = client
	log.Printf("✅ Redis connected (%s, db %d)", cfg.Addr, cfg.DB)
	return nil
}

// CloseRedis 关闭 Redis 连接
func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Close()
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// GetServerConfig 获取服务器配置
func GetServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:         GetEnv("SERVER_PORT", "8080"),
		Mode:         GetEnv("GIN_MODE", "debug"),
		ReadTimeout:  GetEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout: GetEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		CORSOrigins: GetEnvList("CORS_ORIGINS", []string{
			"http://localhost:3000", "http://localhost:5173",
		}),
	}
}

// SetupRouter 创建Gin实例并注册健康检查，其余中间件和业务路由在 routes 中注册
func SetupRouter() *gin.Engine {
	gin.SetMode(GetServerConfig().Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", healthHandler)
	return r
}

// healthHandler 数据库不可用时返回503，Redis不可用只影响缓存
func healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"status":   "ok",
		"database": databaseStatus(ctx),
		"redis":    redisStatus(ctx),
	}
	code := http.StatusOK
	if body["database"] != "connected" {
		body["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}

func databaseStatus(ctx context.Context) string {
	if DB == nil {
		return "not initialized"
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return "error"
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}

func redisStatus(ctx context.Context) string {
	if RedisClient == nil {
		return "not initialized"
	}
	if err := RedisClient.Ping(ctx).Err(); err != nil {
		return "disconnected"
	}
	return "connected"
}

// InitInfrastructure 初始化数据库与Redis，Redis失败时降级为无缓存运行
func InitInfrastructure() error {
	if err := InitDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	redisCfg := GetRedisConfig()
	if !redisCfg.Enabled {
		log.Println("ℹ️  Redis disabled, running without caches and token revocation")
		return nil
	}
	if err := InitializeRedis(redisCfg); err != nil {
		log.Printf("⚠️  %v; running without caches and token revocation", err)
		RedisClient = nil
	}
	return nil
}

// StartServer 启动服务器，阻塞直到 ctx 结束后优雅关闭
func StartServer(ctx context.Context, r *gin.Engine) error {
	cfg := GetServerConfig()
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	log.Printf("🚀 Online library listening on %s (%s mode)", srv.Addr, cfg.Mode)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
