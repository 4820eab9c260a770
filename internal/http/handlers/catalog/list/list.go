// Package list реализует обработчик списка позиций каталога.
// Пользователи видят только активные позиции, администраторы видят все.
package list

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
	List(ctx context.Context, onlyActive bool) ([]*models.CatalogItem, error)
}

type Handler struct {
	log        *slog.Logger
	service    Service
	onlyActive bool
}

func New(log *slog.Logger, service Service, onlyActive bool) *Handler {
	return &Handler{
		log:        log,
		service:    service,
		onlyActive: onlyActive,
	}
}

// ServeHTTP godoc
// @Summary Каталог подписок
// @Description /catalog возвращает активные позиции, /admin/catalog возвращает все.
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 500 {object} response.ErrorResponse
// @Router /catalog [get]
// @Router /admin/catalog [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.catalog.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	items, err := h.service.List(r.Context(), h.onlyActive)
	if err != nil {
		log.Error("failed to list catalog", sl.Err(err))
		response.FromError(w, r, err)
		return
	}
	if items == nil {
		items = []*models.CatalogItem{}
	}
	render.JSON(w, r, response.StatusOKWithData(items))
}
