// Package scheduler содержит приложение ежедневной очистки истёкших подписок.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/subscribely/internal/app/bootstrap"
	"github.com/magabrotheeeer/subscribely/internal/config"
	schedulerservice "github.com/magabrotheeeer/subscribely/internal/services/scheduler"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	ledger           storage.Ledger
	closers          []func()
	runOnStart       bool
	logger           *slog.Logger
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ledger, _, err := bootstrap.Ledger(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	a := &App{
		ledger:     ledger,
		runOnStart: cfg.Sweeper.RunOnStart,
		logger:     logger,
	}

	listCache, closeCache, err := bootstrap.NewCache(ctx, cfg.RedisConnection, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeCache)

	notifier, closeNotifier, err := bootstrap.NewNotifier(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeNotifier)

	a.schedulerService = schedulerservice.NewSchedulerService(ledger, listCache, notifier, logger, loc, cfg.Storage.Timeout)
	return a, nil
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.schedulerService.Run(ctx, a.runOnStart)
	a.logger.Info("shutting down scheduler service")
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.ledger != nil {
		a.ledger.Close()
		a.ledger = nil
	}
}
