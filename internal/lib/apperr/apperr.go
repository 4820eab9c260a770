// Package apperr описывает таксономию ошибок жизненного цикла подписок:
// NotFound, Conflict (с причиной), Forbidden, Unauthorized, Validation, Timeout и Unknown.
//
// Ошибки возвращаются вызывающему как значения, чтобы слой представления
// мог сопоставить каждую из них с конкретным сообщением и HTTP-статусом.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind — вид ошибки.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindValidation
	KindTimeout
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "notFound"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Reason уточняет конфликт бизнес-правила.
type Reason string

const (
	ReasonAlreadySubscribed        Reason = "alreadySubscribed"
	ReasonInsufficientFunds        Reason = "insufficientFunds"
	ReasonSubscriptionLimitReached Reason = "subscriptionLimitReached"
	ReasonAlreadyInactive          Reason = "alreadyInactive"
	ReasonItemUnavailable          Reason = "itemUnavailable"
	ReasonEmailTaken               Reason = "emailTaken"
)

// Сущности, на которые ссылаются ошибки NotFound.
const (
	EntityUser         = "user"
	EntityCatalogItem  = "catalogItem"
	EntitySubscription = "subscription"
)

// Error — доменная ошибка. Поле Err хранит исходную причину, если она есть.
type Error struct {
	Kind   Kind
	Reason Reason
	Entity string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += "(" + string(e.Reason) + ")"
	} else if e.Entity != "" {
		msg += "(" + e.Entity + ")"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибку с шаблоном: пустые Reason и Entity у шаблона
// совпадают с любым значением.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	if t.Entity != "" && t.Entity != e.Entity {
		return false
	}
	return true
}

// Шаблоны для errors.Is.
var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrValidation = &Error{Kind: KindValidation}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrUnknown    = &Error{Kind: KindUnknown}

	ErrUnauthorized = &Error{Kind: KindUnauthorized}

	ErrUserNotFound         = &Error{Kind: KindNotFound, Entity: EntityUser}
	ErrCatalogItemNotFound  = &Error{Kind: KindNotFound, Entity: EntityCatalogItem}
	ErrSubscriptionNotFound = &Error{Kind: KindNotFound, Entity: EntitySubscription}

	ErrAlreadySubscribed        = &Error{Kind: KindConflict, Reason: ReasonAlreadySubscribed}
	ErrInsufficientFunds        = &Error{Kind: KindConflict, Reason: ReasonInsufficientFunds}
	ErrSubscriptionLimitReached = &Error{Kind: KindConflict, Reason: ReasonSubscriptionLimitReached}
	ErrAlreadyInactive          = &Error{Kind: KindConflict, Reason: ReasonAlreadyInactive}
	ErrItemUnavailable          = &Error{Kind: KindConflict, Reason: ReasonItemUnavailable}
	ErrEmailTaken               = &Error{Kind: KindConflict, Reason: ReasonEmailTaken}
)

// NotFound создает ошибку отсутствия сущности.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity}
}

// Conflict создает ошибку нарушения бизнес-правила.
func Conflict(reason Reason, entity string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Entity: entity}
}

// Forbidden создает ошибку авторизации.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

// Unauthorized создает ошибку аутентификации: неверные учётные данные или токен.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

// Validation создает ошибку некорректного ввода.
func Validation(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Err: err}
}

// Classify приводит произвольную ошибку хранилища к доменной:
// доменные ошибки возвращаются как есть, истечение дедлайна становится Timeout,
// остальное — Unknown.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Msg: op, Err: err}
	}
	return &Error{Kind: KindUnknown, Msg: op, Err: err}
}

// KindOf возвращает вид ошибки или KindUnknown.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// ReasonOf возвращает причину конфликта или пустую строку.
func ReasonOf(err error) Reason {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

// Wrapf добавляет контекст к ошибке, сохраняя цепочку для errors.Is.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
