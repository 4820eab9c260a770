package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

const userColumns = `id, name, email, password_hash, balance, role, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u       models.User
		balance int64
		role    string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &balance, &role,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Balance = money.Amount(balance)
	u.Role = models.Role(role)
	return &u, nil
}

// CreateUser сохраняет нового пользователя и возвращает его ID.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"

	query := `INSERT INTO users (name, email, password_hash, balance, role)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	var newID string
	if err := s.Pool.QueryRow(ctx, query,
		user.Name, strings.ToLower(user.Email), user.PasswordHash, int64(user.Balance), string(user.Role),
	).Scan(&newID); err != nil {
		return "", mapErr(op, err)
	}
	return newID, nil
}

// GetUser возвращает пользователя по ID.
func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.GetUser"

	u, err := scanUser(s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по e-mail без учёта регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"

	u, err := scanUser(s.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// SearchUsers ищет подстроку в имени или e-mail.
func (s *Storage) SearchUsers(ctx context.Context, term string, limit int) ([]*models.User, error) {
	const op = "storage.SearchUsers"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
			  ORDER BY name
			  LIMIT $2`
	rows, err := s.Pool.Query(ctx, query, escapeLike(term), limit)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return result, nil
}

// SetBalance перезаписывает баланс пользователя.
func (s *Storage) SetBalance(ctx context.Context, id string, balance money.Amount) error {
	const op = "storage.SetBalance"

	tag, err := s.Pool.Exec(ctx,
		`UPDATE users SET balance = $1, updated_at = now() WHERE id = $2`, int64(balance), id)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
