// Package notification публикует события жизненного цикла подписок
// в RabbitMQ, откуда их забирает отправитель писем.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/subscribely/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

// RoutingKeys — ключи маршрутизации всех типов событий.
var RoutingKeys = []string{
	string(models.EventPurchased),
	string(models.EventCancelled),
	string(models.EventExpired),
}

// Publisher отправляет события в обменник rabbitmq.Exchange
// с ключом маршрутизации, равным типу события.
type Publisher struct {
	ch  rabbitmq.Publisher
	now func() time.Time
}

// NewPublisher создает Publisher поверх открытого канала.
func NewPublisher(ch rabbitmq.Publisher) *Publisher {
	return &Publisher{ch: ch, now: time.Now}
}

// NotifyPurchased публикует событие покупки.
func (p *Publisher) NotifyPurchased(ctx context.Context, user *models.User, sub *models.PurchasedSubscription) error {
	return p.publish(ctx, NewEvent(models.EventPurchased, user, sub, false, p.now()))
}

// NotifyCancelled публикует событие отмены.
func (p *Publisher) NotifyCancelled(ctx context.Context, user *models.User, sub *models.PurchasedSubscription, byAdmin bool) error {
	return p.publish(ctx, NewEvent(models.EventCancelled, user, sub, byAdmin, p.now()))
}

// NotifyExpired публикует событие истечения.
func (p *Publisher) NotifyExpired(ctx context.Context, user *models.User, sub *models.PurchasedSubscription) error {
	return p.publish(ctx, NewEvent(models.EventExpired, user, sub, false, p.now()))
}

func (p *Publisher) publish(ctx context.Context, event models.LifecycleEvent) error {
	const op = "notification.publish"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, string(event.Type), event); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// NewEvent собирает событие из пользователя и снимка подписки.
func NewEvent(t models.EventType, user *models.User, sub *models.PurchasedSubscription,
	byAdmin bool, at time.Time) models.LifecycleEvent {
	return models.LifecycleEvent{
		Type:           t,
		UserID:         user.ID,
		Email:          user.Email,
		Username:       user.Name,
		SubscriptionID: sub.ID,
		Subscription:   sub.Snapshot,
		NextRenewal:    sub.NextRenewal,
		ByAdmin:        byAdmin,
		OccurredAt:     at,
	}
}

// Noop отбрасывает все события. Используется без брокера и в тестах.
type Noop struct{}

func (Noop) NotifyPurchased(context.Context, *models.User, *models.PurchasedSubscription) error {
	return nil
}

func (Noop) NotifyCancelled(context.Context, *models.User, *models.PurchasedSubscription, bool) error {
	return nil
}

func (Noop) NotifyExpired(context.Context, *models.User, *models.PurchasedSubscription) error {
	return nil
}
