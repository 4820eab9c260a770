package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

const subscriptionColumns = `id, user_id, catalog_item_id, name, description, price,
	renewal_interval, next_renewal, active, created_at, updated_at`

func scanSubscription(row pgx.Row) (*models.PurchasedSubscription, error) {
	var (
		sub   models.PurchasedSubscription
		price int64
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.CatalogItemID, &sub.Name, &sub.Description,
		&price, &sub.RenewalInterval, &sub.NextRenewal, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Price = money.Amount(price)
	return &sub, nil
}

func collectSubscriptions(op string, rows pgx.Rows) ([]*models.PurchasedSubscription, error) {
	defer rows.Close()

	var result []*models.PurchasedSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return result, nil
}

// GetSubscription возвращает купленную подписку по ID.
func (s *Storage) GetSubscription(ctx context.Context, id string) (*models.PurchasedSubscription, error) {
	const op = "storage.GetSubscription"

	sub, err := scanSubscription(s.Pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM purchased_subscriptions WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sub, nil
}

// DeactivateSubscription выполняет compare-and-set active: true -> false одним запросом.
func (s *Storage) DeactivateSubscription(ctx context.Context, id string, at time.Time) (bool, error) {
	const op = "storage.DeactivateSubscription"

	tag, err := s.Pool.Exec(ctx,
		`UPDATE purchased_subscriptions SET active = false, updated_at = $2
		 WHERE id = $1 AND active`, id, at)
	if err != nil {
		return false, mapErr(op, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveByUser возвращает активные подписки пользователя в порядке покупки.
func (s *Storage) ListActiveByUser(ctx context.Context, userID string) ([]*models.PurchasedSubscription, error) {
	const op = "storage.ListActiveByUser"

	rows, err := s.Pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM purchased_subscriptions
		 WHERE user_id = $1 AND active
		 ORDER BY created_at`, userID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return collectSubscriptions(op, rows)
}

// ListAllSubscriptions возвращает все подписки с именами владельцев, новые первыми.
func (s *Storage) ListAllSubscriptions(ctx context.Context) ([]*models.AdminSubscriptionView, error) {
	const op = "storage.ListAllSubscriptions"

	query := `SELECT s.id, s.user_id, u.name, s.name, s.price, s.next_renewal, s.active
			  FROM purchased_subscriptions s
			  JOIN users u ON u.id = s.user_id
			  ORDER BY s.created_at DESC`
	rows, err := s.Pool.Query(ctx, query)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	result := make([]*models.AdminSubscriptionView, 0)
	for rows.Next() {
		var (
			v     models.AdminSubscriptionView
			price int64
		)
		if err := rows.Scan(&v.ID, &v.UserID, &v.Username, &v.Name, &price, &v.NextRenewal, &v.Active); err != nil {
			return nil, mapErr(op, err)
		}
		v.Price = money.Amount(price)
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return result, nil
}

// FindExpired возвращает активные подписки с next_renewal < now.
func (s *Storage) FindExpired(ctx context.Context, now time.Time) ([]*models.PurchasedSubscription, error) {
	const op = "storage.FindExpired"

	rows, err := s.Pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM purchased_subscriptions
		 WHERE active AND next_renewal < $1
		 ORDER BY next_renewal`, now)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return collectSubscriptions(op, rows)
}
