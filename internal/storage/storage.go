// Package storage описывает контракт хранилища (леджера) пользователей,
// позиций каталога и купленных подписок. Хранилище не содержит бизнес-правил:
// проверки выполняют сервисы, а хранилище гарантирует атомарность.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate — нарушено ограничение уникальности
	// (e-mail пользователя или активная подписка на ту же позицию).
	ErrDuplicate = errors.New("duplicate record")
)

// Users — операции над учётными записями.
type Users interface {
	CreateUser(ctx context.Context, user models.User) (string, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SearchUsers(ctx context.Context, term string, limit int) ([]*models.User, error)
	SetBalance(ctx context.Context, id string, balance money.Amount) error
}

// Catalog — операции над позициями каталога.
type Catalog interface {
	CreateCatalogItem(ctx context.Context, item models.CatalogItem) (string, error)
	GetCatalogItem(ctx context.Context, id string) (*models.CatalogItem, error)
	ListCatalogItems(ctx context.Context, onlyActive bool) ([]*models.CatalogItem, error)
	DeleteCatalogItem(ctx context.Context, id string) error
	SetCatalogItemActive(ctx context.Context, id string, active bool) error
}

// Subscriptions — операции над купленными подписками вне транзакции покупки.
type Subscriptions interface {
	GetSubscription(ctx context.Context, id string) (*models.PurchasedSubscription, error)
	// DeactivateSubscription атомарно переводит подписку из active в inactive.
	// Возвращает false, если подписка уже была неактивна.
	DeactivateSubscription(ctx context.Context, id string, at time.Time) (bool, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.PurchasedSubscription, error)
	ListAllSubscriptions(ctx context.Context) ([]*models.AdminSubscriptionView, error)
	// FindExpired возвращает активные подписки с датой продления раньше now.
	FindExpired(ctx context.Context, now time.Time) ([]*models.PurchasedSubscription, error)
}

// PurchaseTx — набор пользователя, заблокированный на время транзакции покупки.
// Все изменения применяются при успешном возврате из функции InUserTx
// и отбрасываются при ошибке.
type PurchaseTx interface {
	// User возвращает заблокированную запись пользователя.
	User() *models.User
	CatalogItem(ctx context.Context, id string) (*models.CatalogItem, error)
	ActiveSubscriptions(ctx context.Context) ([]*models.PurchasedSubscription, error)
	SetBalance(ctx context.Context, balance money.Amount) error
	InsertSubscription(ctx context.Context, sub models.PurchasedSubscription) (string, error)
}

// Ledger — полное хранилище.
type Ledger interface {
	Users
	Catalog
	Subscriptions
	// InUserTx блокирует пользователя userID и выполняет fn в одной транзакции.
	// Если пользователя нет, возвращает ErrNotFound, не вызывая fn.
	InUserTx(ctx context.Context, userID string, fn func(tx PurchaseTx) error) error
	Close()
}
