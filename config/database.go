package config

import (
	"fmt"
	"log"
	"time"

	"onlinelibrary_go/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DatabaseConfig 数据库配置结构
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Charset  string
	SSLMode  string
	Path     string
}

// GetDatabaseConfig 从环境变量获取数据库配置
func GetDatabaseConfig() *DatabaseConfig {
	cfg := &DatabaseConfig{
		Driver:   GetEnv("DB_DRIVER", "mysql"),
		Host:     GetEnv("DB_HOST", "localhost"),
		Port:     GetEnv("DB_PORT", "3306"),
		User:     GetEnv("DB_USER", "root"),
		Password: GetEnv("DB_PASSWORD", ""),
		DBName:   GetEnv("DB_NAME", "onlinelibrary"),
		Charset:  GetEnv("DB_CHARSET", "utf8mb4"),
		SSLMode:  GetEnv("DB_SSLMODE", "disable"),
		Path:     GetEnv("DB_PATH", "onlinelibrary.db"),
	}
	if cfg.Driver == "postgres" {
		cfg.Port = GetEnv("DB_PORT", "5432")
		cfg.User = GetEnv("DB_USER", "postgres")
	}

	return cfg
}

// String 用于启动日志，不包含明文密码
func (c *DatabaseConfig) String() string {
	if c.Driver == "sqlite" {
		return fmt.Sprintf("sqlite %s", c.Path)
	}
	return fmt.Sprintf("%s %s@%s:%s/%s (password %s)", c.Driver, c.User, c.Host, c.Port, c.DBName, maskPassword(c.Password))
}

// maskPassword 掩盖密码（只显示前2个字符）
func maskPassword(pwd string) string {
	if len(pwd) == 0 {
		return "(empty)"
	}
	if len(pwd) <= 2 {
		return "***"
	}
	return pwd[:2] + "***"
}

// Dialector 根据配置返回gorm方言
func (c *DatabaseConfig) Dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName, c.Charset)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
		return postgres.Open(dsn), nil
	case "sqlite":
		// 外键约束需要显式开启
		return sqlite.Open(c.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), nil
	}
	return nil, fmt.Errorf("unsupported database driver: %s", c.Driver)
}

// OpenDatabase 打开数据库连接
func OpenDatabase(dialector gorm.Dialector) (*gorm.DB, error) {
	// 配置Gorm日志
	logLevel := logger.Silent
	if GetEnv("GIN_MODE", "release") == "debug" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// InitDatabase 初始化数据库连接
func InitDatabase() error {
	cfg := GetDatabaseConfig()

	dialector, err := cfg.Dialector()
	if err != nil {
		return err
	}

	DB, err = OpenDatabase(dialector)
	if err != nil {
		return err
	}

	// 获取底层的sql.DB实例
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// sqlite 只允许单个写连接
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(GetEnvInt("DB_MAX_IDLE_CONNS", 10))
		sqlDB.SetMaxOpenConns(GetEnvInt("DB_MAX_OPEN_CONNS", 100))
	}
	sqlDB.SetConnMaxLifetime(GetEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour))

	log.Printf("✅ Database connected: %s", cfg)
	return nil
}

// AutoMigrate 自动迁移全部表结构
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// CloseDatabase 关闭数据库连接
func CloseDatabase() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
