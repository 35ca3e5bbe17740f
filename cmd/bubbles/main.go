package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "bubbles/cmd/bubbles/docs"
	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/pkg/logging"
)

var (
	configFile string
)

// @title           Bubbles Command Gateway API
// @version         1.0
// @description     Submits Discord bot commands and reports routing health

// @BasePath  /api/v1

type application interface {
	Initialize(ctx context.Context) error
	Run(ctx context.Context) error
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "bubbles",
		Short: "Bubbles Discord bot command gateway",
		Long:  "Bubbles accepts bot commands over REST, WebSocket and Kafka and runs them on the bot",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(
		serviceCmd("gateway", "Start the command gateway", func(cfg *config.Config, log logger.Logger) application {
			return NewGatewayApp(cfg, log)
		}),
		serviceCmd("bot", "Start the bot process", func(cfg *config.Config, log logger.Logger) application {
			return NewBotApp(cfg, log)
		}),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serviceCmd(use, short string, newApp func(*config.Config, logger.Logger) application) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Errorw("Config file is required. Use --config flag or CONFIG_FILE environment variable")
					return fmt.Errorf("config file is required")
				}
			}

			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				earlyLog.Errorw("Failed to load config", "path", configFile, "error", err)
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Errorw("Failed to init logger", "error", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ctx = logging.WithServiceName(ctx, "bubbles-"+use)
			log.InfowCtx(ctx, "Starting service")

			app := newApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}

			log.InfowCtx(ctx, "Service running")
			if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}
