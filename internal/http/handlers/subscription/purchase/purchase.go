// Package purchase реализует обработчик покупки подписки из каталога.
package purchase

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscribely/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscribely/internal/http/response"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

// Service описывает операцию покупки.
type Service interface {
	Purchase(ctx context.Context, userID, catalogItemID string) (models.PurchaseResult, error)
}

// Handler обрабатывает запросы покупки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Покупка подписки
// @Description Списывает цену позиции с баланса и создает активную подписку.
// @Description Конфликты: alreadySubscribed, insufficientFunds, subscriptionLimitReached, itemUnavailable.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.PurchaseRequest true "Позиция каталога"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 504 {object} response.ErrorResponse
// @Router /subscriptions/purchase [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.purchase"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, ok := middlewarectx.ActorFrom(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req models.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		response.Validate(w, r, err)
		return
	}

	res, err := h.service.Purchase(r.Context(), actor.UserID, req.CatalogItemID)
	if err != nil {
		log.Info("purchase rejected", slog.String("user_id", actor.UserID), sl.Err(err))
		response.FromError(w, r, err)
		return
	}

	log.Info("subscription purchased",
		slog.String("user_id", actor.UserID),
		slog.String("subscription_id", res.SubscriptionID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(res))
}
