// Package search реализует административный поиск пользователей.
package search

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
	SearchUsers(ctx context.Context, term string) ([]*models.User, error)
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
// @Summary Поиск пользователей
// @Description Ищет пользователей по подстроке имени или e-mail (не короче 3 символов).
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param q query string true "Строка поиска"
// @Success 200 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /admin/users [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.search"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	users, err := h.service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Info("search failed", sl.Err(err))
		response.FromError(w, r, err)
		return
	}
	log.Debug("users found", slog.Int("count", len(users)))
	render.JSON(w, r, response.StatusOKWithData(users))
}
