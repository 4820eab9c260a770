// Package sweep реализует ручной запуск проверки истёкших подписок.
package sweep

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscribely/internal/http/response"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
)

type Service interface {
	RunExpirationSweep(ctx context.Context) (int, error)
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
// @Summary Проверка истёкших подписок
// @Description Деактивирует подписки с прошедшей датой продления и возвращает их количество.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 500 {object} response.ErrorResponse
// @Router /admin/sweep [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sweep"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	processed, err := h.service.RunExpirationSweep(r.Context())
	if err != nil {
		log.Error("manual sweep failed", sl.Err(err))
		response.FromError(w, r, err)
		return
	}

	log.Info("manual sweep finished", slog.Int("processed", processed))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"processed": processed,
	}))
}
