package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"onlinelibrary_go/config"
	"onlinelibrary_go/events"
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/routes"
	"onlinelibrary_go/utils"
	"onlinelibrary_go/websocket"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 初始化数据库与Redis
	if err := config.InitInfrastructure(); err != nil {
		return err
	}
	defer config.CloseDatabase()
	defer config.CloseRedis()

	// 2. 迁移表结构
	if err := config.AutoMigrate(config.DB); err != nil {
		return err
	}

	// 3. 启动事件中继（多实例时通过Redis转发通知）
	if err := events.StartRelay(ctx); err != nil {
		middleware.WarnLogger("event relay unavailable, dispatching locally", zap.Error(err))
	}

	// 4. 初始化websocket通知
	if err := websocket.InitWebSocket(); err != nil {
		return fmt.Errorf("failed to initialize websocket: %w", err)
	}
	defer websocket.CloseWebSocket()

	// 5. 封面存储
	var uploader *utils.FileUploader
	store, err := utils.NewObjectStoreFromEnv()
	if err != nil {
		middleware.WarnLogger("cover storage unavailable, uploads disabled", zap.Error(err))
	} else {
		uploader = utils.NewFileUploader(store)
	}

	// 6. 设置路由并启动
	r := config.SetupRouter()
	routes.SetupRoutes(r, uploader)

	return config.StartServer(ctx, r)
}
