package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscribely/internal/http/response"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
)

// Checker проверяет доступность зависимости (например, базы данных).
type Checker func(ctx context.Context) error

type Handler struct {
	log   *slog.Logger
	check Checker
}

// New создает обработчик. check может быть nil.
func New(log *slog.Logger, check Checker) *Handler {
	return &Handler{
		log:   log,
		check: check,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	if h.check != nil {
		if err := h.check(r.Context()); err != nil {
			h.log.Warn("health check failed", slog.String("op", op), sl.Err(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("unavailable"))
			return
		}
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status": "ok",
	}))
}
