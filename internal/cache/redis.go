// Package cache реализует кеш списков подписок и каталога поверх Redis.
// Значения хранятся в JSON с TTL; сервисы сбрасывают ключи после изменений.
// У каждого ключа есть поколение: запись списка, прочитанного до сброса,
// отбрасывается.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/subscribely/internal/config"
)

// Cache — кеш поверх одного клиента Redis.
type Cache struct {
	Db      *redis.Client
	timeout time.Duration
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	timeout := cfg.TimeoutRedis
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Cache{Db: db, timeout: timeout}, nil
}

// Close закрывает клиент Redis.
func (c *Cache) Close() error {
	return c.Db.Close()
}

// Get читает значение по ключу в result. Возвращает false, если ключа нет.
func (c *Cache) Get(key string, result any) (bool, error) {
	const op = "cache.Get"
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	val, err := c.Db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func versionKey(key string) string {
	return "version:" + key
}

// Version возвращает поколение ключа. Каждый Invalidate увеличивает его,
// отсутствующее поколение равно нулю.
func (c *Cache) Version(key string) (int64, error) {
	const op = "cache.Version"
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	version, err := c.Db.Get(ctx, versionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return version, nil
}

// SetIfVersion сохраняет значение в JSON с временем жизни expiration, только
// если поколение ключа всё ещё равно version. Возвращает false, если ключ
// успели сбросить.
func (c *Cache) SetIfVersion(key string, version int64, value any, expiration time.Duration) (bool, error) {
	const op = "cache.SetIfVersion"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stored := false
	err = c.Db.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey(key)).Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, jsonData, expiration)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, versionKey(key))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return stored, nil
}

// Invalidate удаляет ключ и увеличивает его поколение.
func (c *Cache) Invalidate(key string) error {
	const op = "cache.Invalidate"
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.Db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(key))
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Noop — кеш, который ничего не хранит. Используется, когда адрес Redis не задан.
type Noop struct{}

func (Noop) Get(string, any) (bool, error) { return false, nil }

func (Noop) Version(string) (int64, error) { return 0, nil }

// SetIfVersion принимает запись и отбрасывает её.
func (Noop) SetIfVersion(string, int64, any, time.Duration) (bool, error) { return true, nil }

func (Noop) Invalidate(string) error { return nil }
