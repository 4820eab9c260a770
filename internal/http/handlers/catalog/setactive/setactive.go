// Package setactive реализует включение и выключение позиции каталога.
// Выключенная позиция пропадает из пользовательского каталога и не продаётся.
package setactive

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
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

type Service interface {
	SetActive(ctx context.Context, id string, active bool) error
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
// @Summary Активность позиции каталога
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID позиции"
// @Param request body models.SetActiveRequest true "Флаг активности"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /admin/catalog/{id} [patch]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.catalog.setactive"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id := chi.URLParam(r, "id")

	var req models.SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Validate(w, r, err)
		return
	}

	if err := h.service.SetActive(r.Context(), id, *req.Active); err != nil {
		log.Info("failed to toggle catalog item", sl.Err(err))
		response.FromError(w, r, err)
		return
	}

	log.Info("catalog item toggled", slog.String("id", id), slog.Bool("active", *req.Active))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"id":     id,
		"active": *req.Active,
	}))
}
