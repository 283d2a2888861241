package cmd

import (
	"errors"

	"onlinelibrary_go/config"
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/services"
	"onlinelibrary_go/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	moderatorPassword string
	moderatorEmail    string
)

// moderatorForm 管理员账号参数
type moderatorForm struct {
	Username string `json:"username" binding:"required,username"`
	Password string `json:"password" binding:"required,password"`
	Email    string `json:"email" binding:"omitempty,email"`
}

var createModeratorCmd = &cobra.Command{
	Use:   "create-moderator <username>",
	Short: "Create a moderator account or promote an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if moderatorPassword == "" {
			moderatorPassword = config.GetEnv("MODERATOR_PASSWORD", "")
		}
		if moderatorPassword == "" {
			return errors.New("password is required (--password or MODERATOR_PASSWORD)")
		}

		// 管理员账号要求强密码
		form := moderatorForm{Username: args[0], Password: moderatorPassword, Email: moderatorEmail}
		if err := utils.NewValidator().Validate(&form); err != nil {
			return err
		}

		if err := config.InitDatabase(); err != nil {
			return err
		}
		defer config.CloseDatabase()
		if err := config.AutoMigrate(config.DB); err != nil {
			return err
		}

		user, err := services.NewAuthService().CreateModerator(args[0], moderatorPassword, moderatorEmail)
		if err != nil {
			return err
		}
		middleware.InfoLogger("moderator ready", zap.String("username", user.Username), zap.String("id", user.ID))
		return nil
	},
}

func init() {
	createModeratorCmd.Flags().StringVarP(&moderatorPassword, "password", "p", "", "moderator password")
	createModeratorCmd.Flags().StringVarP(&moderatorEmail, "email", "e", "", "moderator email")
}
