package models

import (
	"time"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
)

// MaxActiveSubscriptions — предел одновременно активных подписок пользователя.
const MaxActiveSubscriptions = 3

// SubscriptionState — состояние купленной подписки.
// Допустим единственный переход: active -> inactive.
type SubscriptionState string

const (
	StateActive   SubscriptionState = "active"
	StateInactive SubscriptionState = "inactive"
)

// CanTransition сообщает, допустим ли переход в состояние to.
func (s SubscriptionState) CanTransition(to SubscriptionState) bool {
	return s == StateActive && to == StateInactive
}

// Snapshot фиксирует параметры позиции каталога на момент покупки.
// Интервал хранится строкой: исторические записи могут содержать значения,
// которые текущий парсер не принимает.
type Snapshot struct {
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Price           money.Amount `json:"price"`
	RenewalInterval string       `json:"renewal_interval"`
}

// PurchasedSubscription — купленная пользователем подписка.
// Записи никогда не удаляются физически.
type PurchasedSubscription struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	CatalogItemID string    `json:"catalog_item_id"`
	Snapshot
	NextRenewal time.Time `json:"next_renewal"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// State возвращает текущее состояние подписки.
func (p *PurchasedSubscription) State() SubscriptionState {
	if p.Active {
		return StateActive
	}
	return StateInactive
}

// PurchaseResult — результат покупки.
type PurchaseResult struct {
	NewBalance     money.Amount `json:"new_balance"`
	SubscriptionID string       `json:"subscription_id"`
}

// CancelResult — результат отмены.
type CancelResult struct {
	Name string `json:"name"`
}

// PurchaseRequest — тело запроса покупки.
type PurchaseRequest struct {
	CatalogItemID string `json:"catalog_item_id" validate:"required,uuid"`
}

// UserSubscriptionView — активная подписка в списке пользователя.
type UserSubscriptionView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Price           money.Amount `json:"price"`
	NextRenewal     time.Time    `json:"next_renewal"`
	Description     string       `json:"description,omitempty"`
	RenewalInterval string       `json:"renewal_interval"`
}

// AdminSubscriptionView — подписка в административном списке.
type AdminSubscriptionView struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Username    string       `json:"username"`
	Name        string       `json:"name"`
	Price       money.Amount `json:"price"`
	NextRenewal time.Time    `json:"next_renewal"`
	Active      bool         `json:"active"`
}

// NewUserSubscriptionView строит представление подписки для её владельца.
func NewUserSubscriptionView(p *PurchasedSubscription) UserSubscriptionView {
	return UserSubscriptionView{
		ID:              p.ID,
		Name:            p.Name,
		Price:           p.Price,
		NextRenewal:     p.NextRenewal,
		Description:     p.Description,
		RenewalInterval: p.RenewalInterval,
	}
}
