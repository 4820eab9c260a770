package listall

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscribely/internal/http/response"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

type Service interface {
	ListAllSubscriptions(ctx context.Context) ([]*models.AdminSubscriptionView, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Все подписки
// @Description Активные и неактивные подписки всех пользователей.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /admin/subscriptions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.listall"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subs, err := h.service.ListAllSubscriptions(r.Context())
	if err != nil {
		log.Error("failed to list all subscriptions", sl.Err(err))
		response.FromError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*models.AdminSubscriptionView{}
	}
	render.JSON(w, r, response.StatusOKWithData(subs))
}
