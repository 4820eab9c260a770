// Package models содержит доменные структуры: пользователя, позицию каталога,
// купленную подписку и события её жизненного цикла, а также типы для приёма
// данных из JSON-запросов.
package models

import (
	"time"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
)

// Role — роль пользователя.
type Role string

const (
	RoleUser Role = "user"
	// RoleTester сохранён для совместимости данных, права у него как у RoleUser.
	RoleTester Role = "tester"
	RoleAdmin  Role = "admin"
)

// Valid сообщает, что роль входит в допустимый набор.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTester, RoleAdmin:
		return true
	}
	return false
}

// IsAdmin сообщает, что роль административная.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Balance      money.Amount `json:"balance"`
	Role         Role         `json:"role"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Actor — аутентифицированный инициатор операции.
type Actor struct {
	UserID string
	Role   Role
}

// CanManage сообщает, может ли актор управлять подпиской владельца ownerID.
func (a Actor) CanManage(ownerID string) bool {
	return a.UserID == ownerID || a.Role.IsAdmin()
}

// RegisterRequest — тело запроса регистрации.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest — тело запроса входа.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SetBalanceRequest — тело запроса административной установки баланса.
type SetBalanceRequest struct {
	Balance DecimalInput `json:"balance" validate:"required"`
}
