// Package services содержит операции над учётными записями:
// профиль пользователя, поиск и административную установку баланса.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

const (
	minSearchLength = 3
	searchLimit     = 50
)

// UserRepository описывает операции хранилища, нужные сервису.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SearchUsers(ctx context.Context, term string, limit int) ([]*models.User, error)
	SetBalance(ctx context.Context, id string, balance money.Amount) error
}

// AccountService обслуживает профиль и баланс пользователей.
type AccountService struct {
	users   UserRepository
	log     *slog.Logger
	timeout time.Duration
}

// NewAccountService создает новый экземпляр AccountService.
func NewAccountService(users UserRepository, log *slog.Logger, timeout time.Duration) *AccountService {
	return &AccountService{
		users:   users,
		log:     log,
		timeout: timeout,
	}
}

func (s *AccountService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Me возвращает профиль пользователя с текущим балансом.
func (s *AccountService) Me(ctx context.Context, userID string) (*models.User, error) {
	const op = "services.account.Me"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.EntityUser)
	}
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	return user, nil
}

// SearchUsers ищет пользователей по подстроке имени или e-mail.
// Запрос короче трёх символов отклоняется.
func (s *AccountService) SearchUsers(ctx context.Context, term string) ([]*models.User, error) {
	const op = "services.account.SearchUsers"
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < minSearchLength {
		return nil, apperr.Validation("search term must be at least 3 characters", nil)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	users, err := s.users.SearchUsers(ctx, term, searchLimit)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// SetUserBalance перезаписывает баланс пользователя.
// Допустимый диапазон: от 0 до money.MaxBalance включительно.
func (s *AccountService) SetUserBalance(ctx context.Context, userID string, balance money.Amount) error {
	const op = "services.account.SetUserBalance"
	if balance < 0 || balance > money.MaxBalance {
		return apperr.Validation(fmt.Sprintf("balance must be between 0 and %s", money.MaxBalance), nil)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.users.SetBalance(ctx, userID, balance)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(apperr.EntityUser)
	}
	if err != nil {
		s.log.Error("failed to set balance", slog.String("op", op),
			slog.String("user_id", userID), sl.Err(err))
		return apperr.Classify(op, err)
	}

	s.log.Info("balance updated", slog.String("op", op),
		slog.String("user_id", userID), slog.String("balance", balance.String()))
	return nil
}
