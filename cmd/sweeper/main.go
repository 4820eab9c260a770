// Package main содержит точку входа для отдельного процесса очистки истёкших подписок.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/subscribely/internal/app/scheduler"
	"github.com/magabrotheeeer/subscribely/internal/config"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.SetupLogger(cfg.Env, os.Stdout)

	logger.Info("starting sweeper", slog.String("env", cfg.Env), slog.String("timezone", cfg.Sweeper.Timezone))
	if cfg.Sweeper.Embedded {
		logger.Warn("sweeper is also embedded into the API process, expirations may be processed twice")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := scheduler.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize sweeper", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("sweeper stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("sweeper stopped gracefully")
}
