// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Пакет упрощает возврат
// успешных ответов, ошибок и сообщений валидации в едином формате.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status — статус запроса ("OK" или "Error").
// Поле Error — текст ошибки (опционально, при неуспехе).
// Поле Reason — машинно-читаемая причина конфликта (опционально).
// Поле Data — данные ответа (опционально, при успехе).
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse — структура ошибки для Swagger-документации.
// Используется в аннотациях @Failure как возвращаемый тип ошибки.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
	Reason string `json:"reason,omitempty" example:"insufficientFunds"`
}

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid e-mail", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s characters", err.Field(), err.Param()))
		case "uuid":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only uuid", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// BadRequest пишет ответ 400 для тела запроса, которое не удалось разобрать.
func BadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, Error(msg))
}

// Validate пишет ответ 422 для ошибки валидатора. Ошибки, не являющиеся
// validator.ValidationErrors, возвращаются как текст.
func Validate(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusUnprocessableEntity)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		render.JSON(w, r, ValidationError(verrs))
		return
	}
	render.JSON(w, r, Error(err.Error()))
}

// StatusOf возвращает HTTP-статус для доменной ошибки.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// FromError пишет ответ для доменной ошибки. Внутренние подробности
// ошибок Unknown и Timeout клиенту не передаются.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	render.Status(r, status)

	resp := ErrorResponse{Status: StatusError, Reason: string(apperr.ReasonOf(err))}
	var appErr *apperr.Error
	switch {
	case status == http.StatusInternalServerError:
		resp.Error = "internal error"
	case status == http.StatusGatewayTimeout:
		resp.Error = "request timed out"
	case errors.As(err, &appErr) && appErr.Kind == apperr.KindNotFound:
		resp.Error = appErr.Entity + " not found"
	case errors.As(err, &appErr) && appErr.Msg != "":
		resp.Error = appErr.Msg
	default:
		resp.Error = apperr.KindOf(err).String()
	}
	if resp.Reason != "" && resp.Error == apperr.KindConflict.String() {
		resp.Error = string(resp.Reason)
	}
	render.JSON(w, r, resp)
}
