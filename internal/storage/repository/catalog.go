package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/lib/renewal"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

const catalogColumns = `id, name, description, price, renewal_interval, active, created_at, updated_at`

func scanCatalogItem(row pgx.Row) (*models.CatalogItem, error) {
	var (
		item     models.CatalogItem
		price    int64
		interval string
	)
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &price, &interval,
		&item.Active, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.Price = money.Amount(price)
	// Нераспознанный интервал оставляется нулевым; сервис покупки
	// подставит значение по умолчанию.
	if parsed, err := renewal.Parse(interval); err == nil {
		item.RenewalInterval = parsed
	}
	return &item, nil
}

// CreateCatalogItem добавляет позицию каталога и возвращает её ID.
func (s *Storage) CreateCatalogItem(ctx context.Context, item models.CatalogItem) (string, error) {
	const op = "storage.CreateCatalogItem"

	query := `INSERT INTO catalog_items (name, description, price, renewal_interval, active)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	var newID string
	if err := s.Pool.QueryRow(ctx, query,
		item.Name, item.Description, int64(item.Price), item.RenewalInterval.String(), item.Active,
	).Scan(&newID); err != nil {
		return "", mapErr(op, err)
	}
	return newID, nil
}

// GetCatalogItem возвращает позицию каталога по ID.
func (s *Storage) GetCatalogItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	const op = "storage.GetCatalogItem"

	item, err := scanCatalogItem(s.Pool.QueryRow(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return item, nil
}

// ListCatalogItems возвращает позиции каталога, новые первыми.
func (s *Storage) ListCatalogItems(ctx context.Context, onlyActive bool) ([]*models.CatalogItem, error) {
	const op = "storage.ListCatalogItems"

	query := `SELECT ` + catalogColumns + `
			  FROM catalog_items
			  WHERE ($1 = false OR active)
			  ORDER BY created_at DESC, name`
	rows, err := s.Pool.Query(ctx, query, onlyActive)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	result := make([]*models.CatalogItem, 0)
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return result, nil
}

// DeleteCatalogItem физически удаляет позицию каталога.
func (s *Storage) DeleteCatalogItem(ctx context.Context, id string) error {
	const op = "storage.DeleteCatalogItem"

	tag, err := s.Pool.Exec(ctx, `DELETE FROM catalog_items WHERE id = $1`, id)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// SetCatalogItemActive меняет флаг доступности позиции.
func (s *Storage) SetCatalogItemActive(ctx context.Context, id string, active bool) error {
	const op = "storage.SetCatalogItemActive"

	tag, err := s.Pool.Exec(ctx,
		`UPDATE catalog_items SET active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}
