// Package repository реализует хранилище на PostgreSQL через пул pgx.
// Транзакция покупки блокирует строку пользователя (SELECT ... FOR UPDATE),
// поэтому конкурентные покупки одного пользователя выполняются по очереди,
// а частичный уникальный индекс по (user_id, catalog_item_id) WHERE active
// служит ограничением на уровне схемы.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/subscribely/internal/storage"
)

const (
	pgUniqueViolation     = "23505"
	pgInvalidTextRepr     = "22P02"
	pgForeignKeyViolation = "23503"
)

// Storage инкапсулирует пул соединений с PostgreSQL.
type Storage struct {
	Pool *pgxpool.Pool
}

var _ storage.Ledger = (*Storage)(nil)

// New создаёт пул соединений и проверяет доступность базы.
func New(ctx context.Context, storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	pool, err := pgxpool.New(ctx, storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		Pool: pool,
	}, nil
}

// DB возвращает *sql.DB поверх пула для инструментов, работающих с database/sql.
func (s *Storage) DB() *sql.DB {
	return stdlib.OpenDBFromPool(s.Pool)
}

// Close закрывает пул.
func (s *Storage) Close() {
	s.Pool.Close()
}

// CheckDatabaseReady проверяет, что схема создана.
func CheckDatabaseReady(ctx context.Context, s *Storage) error {
	var exists bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'purchased_subscriptions'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("required table purchased_subscriptions query error: %w", err)
	}
	if !exists {
		return errors.New("required table purchased_subscriptions missing")
	}
	return nil
}

// mapErr приводит ошибки pgx к ошибкам пакета storage.
// Некорректный UUID в запросе трактуется как отсутствие записи.
func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, storage.ErrDuplicate, pgErr.ConstraintName)
		case pgInvalidTextRepr, pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, storage.ErrNotFound, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
