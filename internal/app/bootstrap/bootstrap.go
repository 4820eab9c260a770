// Package bootstrap собирает общую инфраструктуру приложений: хранилище,
// кеш и отправителя уведомлений по конфигурации. Отсутствующие Redis
// и RabbitMQ заменяются заглушками.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscribely/internal/cache"
	"github.com/magabrotheeeer/subscribely/internal/config"
	"github.com/magabrotheeeer/subscribely/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/migrations"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/notification"
	"github.com/magabrotheeeer/subscribely/internal/storage"
	"github.com/magabrotheeeer/subscribely/internal/storage/memory"
	"github.com/magabrotheeeer/subscribely/internal/storage/repository"
)

const (
	dbReadyRetries = 10
	dbReadyDelay   = 3 * time.Second
)

// Cache хранит закешированные списки.
type Cache interface {
	Get(key string, result any) (bool, error)
	Version(key string) (int64, error)
	SetIfVersion(key string, version int64, value any, expiration time.Duration) (bool, error)
	Invalidate(key string) error
}

// Notifier получает события жизненного цикла подписок.
type Notifier interface {
	NotifyPurchased(ctx context.Context, user *models.User, sub *models.PurchasedSubscription) error
	NotifyCancelled(ctx context.Context, user *models.User, sub *models.PurchasedSubscription, byAdmin bool) error
	NotifyExpired(ctx context.Context, user *models.User, sub *models.PurchasedSubscription) error
}

// Ledger открывает хранилище выбранного драйвера. Для postgres при
// run_migrations применяются миграции, затем проверяется наличие схемы.
// Второе возвращаемое значение проверяет доступность хранилища.
func Ledger(ctx context.Context, cfg config.Storage, log *slog.Logger) (storage.Ledger, func(context.Context) error, error) {
	const op = "bootstrap.Ledger"

	if cfg.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil, nil
	}

	db, err := repository.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.RunMigrations {
		sqlDB := db.DB()
		err := migrations.Run(sqlDB, cfg.MigrationsPath)
		_ = sqlDB.Close()
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("migrations applied", slog.String("path", cfg.MigrationsPath))
	}

	if err := waitForDB(ctx, db, log); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	check := func(ctx context.Context) error {
		return db.Pool.Ping(ctx)
	}
	return db, check, nil
}

func waitForDB(ctx context.Context, db *repository.Storage, log *slog.Logger) error {
	var err error
	for range dbReadyRetries {
		if err = repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		log.Warn("database schema not ready, retrying", sl.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dbReadyDelay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// NewCache подключается к Redis. Пустой адрес отключает кеширование.
func NewCache(ctx context.Context, cfg config.RedisConnection, log *slog.Logger) (Cache, func(), error) {
	if cfg.AddressRedis == "" {
		log.Info("redis address is empty, listing cache disabled")
		return cache.Noop{}, func() {}, nil
	}
	c, err := cache.InitServer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {
		if err := c.Close(); err != nil {
			log.Error("failed to close redis client", sl.Err(err))
		}
	}, nil
}

// NewNotifier подключается к RabbitMQ и объявляет очередь событий.
// Пустой URL отключает уведомления.
func NewNotifier(ctx context.Context, cfg config.RabbitMQ, log *slog.Logger) (Notifier, func(), error) {
	const op = "bootstrap.NewNotifier"

	if cfg.URL == "" {
		log.Info("rabbitmq url is empty, notifications disabled")
		return notification.Noop{}, func() {}, nil
	}

	conn, err := rabbitmq.Connect(ctx, cfg.URL, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues(notification.RoutingKeys...))
	if err != nil {
		CloseAMQP(nil, conn, log)
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return notification.NewPublisher(ch), func() { CloseAMQP(ch, conn, log) }, nil
}

// CloseAMQP закрывает канал и соединение, записывая ошибки в лог.
func CloseAMQP(ch *amqp.Channel, conn *amqp.Connection, log *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			log.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Error("failed to close connection", sl.Err(err))
		}
	}
}
