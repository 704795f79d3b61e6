// Package main Entitlement Service API
//
// @title           Entitlement Service API
// @version         1.0
// @description     API подписок и лицензий устройств
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:3001
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/magabrotheeeer/entitlement-service/internal/app/entitlement"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
)

const envLocal = "local"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config (overrides CONFIG_PATH)")
	pflag.Parse()

	// .env необязателен, переменные окружения могут прийти из оркестратора
	_ = godotenv.Load()

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	cfg := config.MustLoadPath(*configPath)
	logger := setupLogger(cfg.Env)

	logger.Info("starting entitlement-service", slog.String("env", cfg.Env))
	logger.Debug("debug messages are enabled", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := entitlement.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("entitlement-service stopped gracefully")
}

func setupLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == envLocal {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
