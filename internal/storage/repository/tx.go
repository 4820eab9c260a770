package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

// InUserTx открывает транзакцию, блокирует строку пользователя и выполняет fn.
// Коммит выполняется только если fn вернула nil; при любой ошибке,
// включая истечение контекста, транзакция откатывается.
func (s *Storage) InUserTx(ctx context.Context, userID string, fn func(tx storage.PurchaseTx) error) error {
	const op = "storage.InUserTx"

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		// после Commit вернёт pgx.ErrTxClosed
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	u, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return mapErr(op, err)
	}

	if err := fn(&purchaseTx{tx: tx, user: u}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapErr(op, err)
	}
	return nil
}

type purchaseTx struct {
	tx   pgx.Tx
	user *models.User
}

func (t *purchaseTx) User() *models.User {
	cp := *t.user
	return &cp
}

func (t *purchaseTx) CatalogItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	const op = "storage.tx.CatalogItem"

	item, err := scanCatalogItem(t.tx.QueryRow(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items WHERE id = $1 FOR SHARE`, id))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return item, nil
}

func (t *purchaseTx) ActiveSubscriptions(ctx context.Context) ([]*models.PurchasedSubscription, error) {
	const op = "storage.tx.ActiveSubscriptions"

	rows, err := t.tx.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM purchased_subscriptions
		 WHERE user_id = $1 AND active`, t.user.ID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return collectSubscriptions(op, rows)
}

func (t *purchaseTx) SetBalance(ctx context.Context, balance money.Amount) error {
	const op = "storage.tx.SetBalance"

	if _, err := t.tx.Exec(ctx,
		`UPDATE users SET balance = $1, updated_at = now() WHERE id = $2`, int64(balance), t.user.ID); err != nil {
		return mapErr(op, err)
	}
	t.user.Balance = balance
	return nil
}

func (t *purchaseTx) InsertSubscription(ctx context.Context, sub models.PurchasedSubscription) (string, error) {
	const op = "storage.tx.InsertSubscription"

	query := `INSERT INTO purchased_subscriptions
			      (user_id, catalog_item_id, name, description, price, renewal_interval,
			       next_renewal, active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			  RETURNING id`
	var newID string
	if err := t.tx.QueryRow(ctx, query,
		t.user.ID, sub.CatalogItemID, sub.Name, sub.Description, int64(sub.Price), sub.RenewalInterval,
		sub.NextRenewal, sub.Active, sub.CreatedAt,
	).Scan(&newID); err != nil {
		return "", mapErr(op, err)
	}
	return newID, nil
}
