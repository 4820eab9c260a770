// Package balance реализует административную установку баланса пользователя.
package balance

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscribely/internal/http/response"
	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

type Service interface {
	SetUserBalance(ctx context.Context, userID string, balance money.Amount) error
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Установка баланса
// @Description Перезаписывает баланс пользователя значением от 0 до 999999999.00.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID пользователя"
// @Param request body models.SetBalanceRequest true "Новый баланс"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /admin/users/{id}/balance [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.balance"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "id")

	var req models.SetBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Validate(w, r, err)
		return
	}
	amount, err := req.Balance.Amount()
	if err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("balance must be a decimal number with at most two fractional digits"))
		return
	}

	if err := h.service.SetUserBalance(r.Context(), userID, amount); err != nil {
		log.Info("failed to set balance", sl.Err(err))
		response.FromError(w, r, err)
		return
	}

	log.Info("balance set", slog.String("user_id", userID), slog.String("balance", amount.String()))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_id": userID,
		"balance": amount,
	}))
}
