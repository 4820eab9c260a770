package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/migrations"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя и возвращает его ID
func (f *TestDataFactory) CreateUser(t *testing.T, name, email string, balance money.Amount, role string) string {
	var id string
	err := f.storage.Pool.QueryRow(context.Background(),
		`INSERT INTO users (name, email, password_hash, balance, role)
		 VALUES ($1, $2, 'hashedpassword', $3, $4) RETURNING id`,
		name, email, int64(balance), role).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateCatalogItem создает тестовую позицию каталога
func (f *TestDataFactory) CreateCatalogItem(t *testing.T, name string, price money.Amount, interval string, active bool) string {
	var id string
	err := f.storage.Pool.QueryRow(context.Background(),
		`INSERT INTO catalog_items (name, price, renewal_interval, active)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		name, int64(price), interval, active).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateSubscription создает тестовую купленную подписку
func (f *TestDataFactory) CreateSubscription(t *testing.T, userID, itemID, name string, price money.Amount,
	nextRenewal time.Time, active bool) string {
	var id string
	err := f.storage.Pool.QueryRow(context.Background(),
		`INSERT INTO purchased_subscriptions
		     (user_id, catalog_item_id, name, price, renewal_interval, next_renewal, active)
		 VALUES ($1, $2, $3, $4, '1m', $5, $6) RETURNING id`,
		userID, itemID, name, int64(price), nextRenewal, active).Scan(&id)
	require.NoError(t, err)
	return id
}

// TestVerification содержит общие функции для проверки результатов тестов
type TestVerification struct {
	storage *Storage
}

// NewTestVerification создает новый объект для проверки результатов
func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

// VerifyBalance проверяет баланс пользователя
func (v *TestVerification) VerifyBalance(t *testing.T, userID string, expected money.Amount) {
	var balance int64
	err := v.storage.Pool.QueryRow(context.Background(),
		"SELECT balance FROM users WHERE id = $1", userID).Scan(&balance)
	require.NoError(t, err)
	require.Equal(t, expected, money.Amount(balance))
}

// CountActive возвращает количество активных подписок пользователя
func (v *TestVerification) CountActive(t *testing.T, userID string) int {
	var count int
	err := v.storage.Pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM purchased_subscriptions WHERE user_id = $1 AND active", userID).Scan(&count)
	require.NoError(t, err)
	return count
}

// setupTestDatabase создает тестовую БД с контейнером PostgreSQL и применяет миграции
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var storage *Storage
	for range 10 {
		storage, err = New(ctx, connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	db := storage.DB()
	require.NoError(t, migrations.Run(db, migrationsPath))

	cleanup := func() {
		_ = db.Close()
		storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}
