package cmd

import (
	"onlinelibrary_go/config"
	"onlinelibrary_go/middleware"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitDatabase(); err != nil {
			return err
		}
		defer config.CloseDatabase()

		if err := config.AutoMigrate(config.DB); err != nil {
			return err
		}
		middleware.InfoLogger("database schema is up to date")
		return nil
	},
}
