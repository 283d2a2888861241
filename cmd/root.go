// Package cmd 命令行入口：serve（默认）、migrate、create-moderator
package cmd

import (
	"log"

	"onlinelibrary_go/config"
	"onlinelibrary_go/middleware"

	"github.com/spf13/cobra"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "onlinelibrary",
		Short: "Online library is a social book marketplace",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfigFile(configFile); err != nil {
				return err
			}
			return middleware.InitLogger(config.GetEnv("GIN_MODE", "debug"))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			middleware.FlushLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, toml or json); environment variables take precedence")
	rootCmd.AddCommand(serveCmd, migrateCmd, createModeratorCmd)
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}
