package models

import "time"

// EventType — тип события жизненного цикла подписки.
type EventType string

const (
	EventPurchased EventType = "purchased"
	EventCancelled EventType = "cancelled"
	EventExpired   EventType = "expired"
)

// LifecycleEvent передаётся в очередь уведомлений и содержит всё,
// что нужно отправителю писем, без обращения к хранилищу.
type LifecycleEvent struct {
	Type           EventType `json:"type"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	SubscriptionID string    `json:"subscription_id"`
	Subscription   Snapshot  `json:"subscription"`
	NextRenewal    time.Time `json:"next_renewal"`
	ByAdmin        bool      `json:"by_admin,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
