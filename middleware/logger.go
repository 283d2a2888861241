package middleware

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"onlinelibrary_go/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AccessLogStream Redis中保存访问日志的stream
const AccessLogStream = "library:access_log"

var (
	logger      = zap.NewNop()
	accessQueue chan *AccessLog
	queueOnce   sync.Once
)

// AccessLog 单个请求的访问记录
type AccessLog struct {
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id"`
	Method    string    `json:"method"`
	Route     string    `json:"route"` // 路由模板，如 /api/books/:isbn
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	IP        string    `json:"ip"`
	UserID    string    `json:"user_id,omitempty"`
	Errors    string    `json:"errors,omitempty"`
}

// LogFileConfig 日志文件滚动配置
type LogFileConfig struct {
	Filename   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
}

// GetLogFileConfig 从环境变量读取日志文件配置，LOG_FILE 为空时不写文件
func GetLogFileConfig() *LogFileConfig {
	return &LogFileConfig{
		Filename:   config.GetEnv("LOG_FILE", ""),
		MaxSize:    config.GetEnvInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups: config.GetEnvInt("LOG_MAX_BACKUPS", 7),
		MaxAge:     config.GetEnvInt("LOG_MAX_AGE_DAYS", 30),
		Compress:   config.GetEnvBool("LOG_COMPRESS", true),
	}
}

// InitLogger 初始化日志：debug模式彩色控制台，其余模式JSON；配置了 LOG_FILE 时同时写入滚动文件
func InitLogger(mode string) error {
	level := zapcore.InfoLevel
	var console zapcore.Encoder
	if mode == "debug" || mode == "" {
		level = zapcore.DebugLevel
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		console = zapcore.NewConsoleEncoder(enc)
	} else {
		console = zapcore.NewJSONEncoder(jsonEncoderConfig())
	}

	cores := []zapcore.Core{zapcore.NewCore(console, zapcore.AddSync(os.Stdout), level)}
	if fileCfg := GetLogFileConfig(); fileCfg.Filename != "" {
		rotation := &lumberjack.Logger{
			Filename:   fileCfg.Filename,
			MaxSize:    fileCfg.MaxSize,
			MaxBackups: fileCfg.MaxBackups,
			MaxAge:     fileCfg.MaxAge,
			Compress:   fileCfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(rotation), level))
	}

	SetLogger(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)))
	return nil
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

// SetLogger 替换全局日志实例，首次调用时启动访问日志worker
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l

	queueOnce.Do(func() {
		accessQueue = make(chan *AccessLog, config.GetEnvInt("ACCESS_LOG_QUEUE", 1000))
		for i := 0; i < config.GetEnvInt("ACCESS_LOG_WORKERS", 3); i++ {
			go func() {
				for entry := range accessQueue {
					entry.write()
				}
			}()
		}
	})
}

// Log 返回全局日志实例
func Log() *zap.Logger {
	return logger
}

// write 写入zap，Redis可用时同时追加到访问日志stream
func (al *AccessLog) write() {
	fields := []zap.Field{
		zap.String("request_id", al.RequestID),
		zap.String("method", al.Method),
		zap.String("route", al.Route),
		zap.String("path", al.Path),
		zap.Int("status", al.Status),
		zap.Int64("latency_ms", al.LatencyMS),
		zap.String("ip", al.IP),
	}
	if al.UserID != "" {
		fields = append(fields, zap.String("user_id", al.UserID))
	}
	switch {
	case al.Status >= 500:
		logger.Error("request failed", append(fields, zap.String("errors", al.Errors))...)
	case al.Errors != "":
		logger.Warn("request", append(fields, zap.String("errors", al.Errors))...)
	default:
		logger.Info("request", fields...)
	}

	if config.RedisClient == nil {
		return
	}
	payload, err := json.Marshal(al)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = config.RedisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: AccessLogStream,
		MaxLen: int64(config.GetEnvInt("ACCESS_LOG_STREAM_MAXLEN", 100000)),
		Approx: true,
		Values: map[string]interface{}{"route": al.Route, "status": al.Status, "entry": string(payload)},
	}).Err()
	if err != nil {
		logger.Debug("failed to append access log to redis", zap.Error(err))
	}
}

// Logger 访问日志中间件，分配请求ID并异步记录
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 1. 沿用客户端传入的请求ID
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		// 2. 请求完成后入队，队列满时丢弃
		entry := &AccessLog{
			Time:      start,
			RequestID: requestID,
			Method:    c.Request.Method,
			Route:     c.FullPath(),
			Path:      c.Request.URL.Path,
			Status:    c.Writer.Status(),
			LatencyMS: time.Since(start).Milliseconds(),
			IP:        c.ClientIP(),
			UserID:    c.GetString(ContextUserID),
		}
		if len(c.Errors) > 0 {
			entry.Errors = c.Errors.String()
		}
		if accessQueue == nil {
			return
		}
		select {
		case accessQueue <- entry:
		default:
			logger.Warn("access log queue is full, dropping entry", zap.String("route", entry.Route))
		}
	}
}

// ErrorLogger 错误日志
func ErrorLogger(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
}

// WarnLogger 警告日志
func WarnLogger(msg string, fields ...zap.Field) {
	logger.Warn(msg, fields...)
}

// InfoLogger 信息日志
func InfoLogger(msg string, fields ...zap.Field) {
	logger.Info(msg, fields...)
}

// DebugLogger 调试日志
func DebugLogger(msg string, fields ...zap.Field) {
	logger.Debug(msg, fields...)
}

// FlushLogger 刷新日志缓冲区
func FlushLogger() {
	_ = logger.Sync()
}
