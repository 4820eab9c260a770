// Package me реализует обработчик профиля текущего пользователя.
package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscribely/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscribely/internal/http/response"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

type Service interface {
	Me(ctx context.Context, userID string) (*models.User, error)
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
// @Summary Профиль пользователя
// @Description Возвращает имя, e-mail, роль и текущий баланс.
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.me"

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

	user, err := h.service.Me(r.Context(), actor.UserID)
	if err != nil {
		log.Error("failed to load profile", sl.Err(err))
		response.FromError(w, r, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(user))
}
