// Package services содержит логику бизнес-уровня для работы с пользователями и аутентификацией.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/lib/jwt"
	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/lib/password"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

const (
	minNameLength     = 3
	minPasswordLength = 6
)

// UserRepository описывает контракт для работы с пользователями в хранилище.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (string, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthService отвечает за регистрацию, вход и проверку JWT.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
	validate *validator.Validate
	log      *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker, log *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
		validate: validator.New(),
		log:      log,
	}
}

// Register создает пользователя с ролью user и стартовым балансом.
// E-mail приводится к нижнему регистру и должен быть уникален.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (string, error) {
	const op = "services.auth.Register"

	user, err := s.newUser(req, models.RoleUser)
	if err != nil {
		return "", err
	}

	id, err := s.users.CreateUser(ctx, user)
	if errors.Is(err, storage.ErrDuplicate) {
		return "", apperr.Conflict(apperr.ReasonEmailTaken, apperr.EntityUser)
	}
	if err != nil {
		return "", apperr.Classify(op, err)
	}

	s.log.Info("user registered", slog.String("op", op), slog.String("user_id", id))
	return id, nil
}

func (s *AuthService) newUser(req models.RegisterRequest, role models.Role) (models.User, error) {
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < minNameLength {
		return models.User{}, apperr.Validation("name must be at least 3 characters", nil)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return models.User{}, apperr.Validation("email is invalid", err)
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return models.User{}, apperr.Validation("password must be at least 6 characters", nil)
	}

	hashed, err := password.GetHash(req.Password)
	if err != nil {
		return models.User{}, apperr.Validation("password cannot be hashed", err)
	}
	return models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Balance:      money.DefaultBalance,
		Role:         role,
	}, nil
}

// Login проверяет пароль и выпускает JWT. Неизвестный e-mail и неверный пароль
// дают одинаковую ошибку.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (string, *models.User, error) {
	const op = "services.auth.Login"

	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return "", nil, apperr.Classify(op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, apperr.Unauthorized("invalid credentials")
	}

	token, err := s.jwtMaker.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return "", nil, apperr.Classify(op, err)
	}
	return token, user, nil
}

// ValidateToken проверяет JWT и возвращает инициатора запроса.
func (s *AuthService) ValidateToken(_ context.Context, token string) (models.Actor, error) {
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return models.Actor{}, apperr.Unauthorized("invalid token")
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return models.Actor{}, apperr.Unauthorized("unknown role")
	}
	return models.Actor{UserID: claims.UserID, Role: role}, nil
}

// EnsureAdmin создаёт учётную запись администратора, если пользователя
// с таким e-mail ещё нет. Возвращает true, если запись создана.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, rawPassword string) (bool, error) {
	const op = "services.auth.EnsureAdmin"

	existing, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err == nil {
		if !existing.Role.IsAdmin() {
			s.log.Warn("bootstrap admin e-mail belongs to a non-admin user",
				slog.String("op", op), slog.String("user_id", existing.ID))
		}
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.newUser(models.RegisterRequest{Name: name, Email: email, Password: rawPassword}, models.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	id, err := s.users.CreateUser(ctx, user)
	if errors.Is(err, storage.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("admin account created", slog.String("op", op), slog.String("user_id", id))
	return true, nil
}
