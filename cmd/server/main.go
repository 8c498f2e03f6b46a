package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomrelay/internal/app"
	"github.com/vovakirdan/roomrelay/internal/auth"
	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/log"
	transporthttp "github.com/vovakirdan/roomrelay/internal/transport/http"
)

var (
	configPath string
	overrides  config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "roomrelay chat session server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	rootCmd.AddCommand(newServeCmd(), newTokenCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration and applies flag overrides.
func loadConfig() (config.Config, *zerolog.Logger, error) {
	bootLogger := log.New(overrides.LogLevel, overrides.LogFormat)
	cfg, path, err := config.Load(bootLogger, configPath)
	if err != nil {
		return cfg, bootLogger, err
	}
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Str("store", cfg.Store.Driver).Msg("starting roomrelay server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&overrides.LogFormat, "log-format", "", "log output format (console, json)")
	flags.StringVar(&overrides.Store.Driver, "store-driver", "", "durable store driver (sqlite, mongo)")
	flags.StringVar(&overrides.Store.SQLitePath, "sqlite-path", "", "SQLite database file")
	flags.StringVar(&overrides.Store.MongoURI, "mongo-uri", "", "MongoDB connection URI")
	flags.StringVar(&overrides.Store.MongoDatabase, "mongo-database", "", "MongoDB database name")
	flags.IntVar(&overrides.HistoryLimit, "history-limit", 0, "messages kept and replayed per room")
	flags.IntVar(&overrides.RateLimitPerMinute, "rate-limit", 0, "inbound frames per connection per minute (0 = unlimited)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token for the diagnostics API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			jwtConfig := transporthttp.AdminJWTConfig(&cfg)
			jwtConfig.TTL = ttl
			token, err := auth.GenerateToken(jwtConfig, subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
