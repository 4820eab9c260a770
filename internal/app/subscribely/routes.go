// Package subscribely собирает основное приложение: HTTP API, gRPC health,
// встроенную очистку истёкших подписок и создание администратора.
package subscribely

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/subscribely/internal/http/handlers/account/balance"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/account/me"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/account/search"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/auth/register"
	catalogcreate "github.com/magabrotheeeer/subscribely/internal/http/handlers/catalog/create"
	cataloglist "github.com/magabrotheeeer/subscribely/internal/http/handlers/catalog/list"
	catalogremove "github.com/magabrotheeeer/subscribely/internal/http/handlers/catalog/remove"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/catalog/setactive"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/health"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/subscription/list"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/subscription/listall"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/subscription/purchase"
	"github.com/magabrotheeeer/subscribely/internal/http/handlers/sweep"
	"github.com/magabrotheeeer/subscribely/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscribely/internal/metrics"
	accountservice "github.com/magabrotheeeer/subscribely/internal/services/account"
	authservice "github.com/magabrotheeeer/subscribely/internal/services/auth"
	catalogservice "github.com/magabrotheeeer/subscribely/internal/services/catalog"
	schedulerservice "github.com/magabrotheeeer/subscribely/internal/services/scheduler"
	subservice "github.com/magabrotheeeer/subscribely/internal/services/subscription"
)

// Services — сервисы, которые обслуживает HTTP API.
type Services struct {
	Auth         *authservice.AuthService
	Account      *accountservice.AccountService
	Catalog      *catalogservice.CatalogService
	Subscription *subservice.SubscriptionService
	Scheduler    *schedulerservice.SchedulerService
	Health       health.Checker
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.Middleware,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, s.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, s.Auth).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(s.Auth, logger))

			r.Get("/me", me.New(logger, s.Account).ServeHTTP)
			r.Get("/catalog", cataloglist.New(logger, s.Catalog, true).ServeHTTP)
			r.Post("/subscriptions/purchase", purchase.New(logger, s.Subscription).ServeHTTP)
			r.Get("/subscriptions", list.New(logger, s.Subscription).ServeHTTP)
			r.Delete("/subscriptions/{id}", cancel.New(logger, s.Subscription).ServeHTTP)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.RequireAdmin(logger))

				r.Get("/catalog", cataloglist.New(logger, s.Catalog, false).ServeHTTP)
				r.Post("/catalog", catalogcreate.New(logger, s.Catalog).ServeHTTP)
				r.Delete("/catalog/{id}", catalogremove.New(logger, s.Catalog).ServeHTTP)
				r.Patch("/catalog/{id}", setactive.New(logger, s.Catalog).ServeHTTP)
				r.Get("/subscriptions", listall.New(logger, s.Subscription).ServeHTTP)
				r.Get("/users", search.New(logger, s.Account).ServeHTTP)
				r.Put("/users/{id}/balance", balance.New(logger, s.Account).ServeHTTP)
				r.Post("/sweep", sweep.New(logger, s.Scheduler).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger, s.Health).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
