package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/qingcheng-ai/QingchengAPI/internal/app"
	"github.com/qingcheng-ai/QingchengAPI/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var appCfg config.AppConfig
	rootCmd := &cobra.Command{
		Use:           "qingcheng",
		Short:         "Qingcheng AI credit service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&appCfg.ConfigPath, "config", "c", "", "Path to config.yaml")

	rootCmd.AddCommand(serveCmd(&appCfg))
	rootCmd.AddCommand(migrateCmd(&appCfg))
	rootCmd.AddCommand(configCmd(&appCfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(appCfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.RunServer(ctx, *appCfg)
		},
	}
}

func migrateCmd(appCfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context(), *appCfg)
		},
	}
}

func configCmd(appCfg *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config with a generated JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolveConfigPath(appCfg.ConfigPath)
			if _, err := config.WriteDefault(path, force); err != nil {
				return err
			}
			log.Infof("wrote %s", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
