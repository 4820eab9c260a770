package subscribely

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/magabrotheeeer/subscribely/internal/app/bootstrap"
	"github.com/magabrotheeeer/subscribely/internal/config"
	"github.com/magabrotheeeer/subscribely/internal/lib/jwt"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	accountservice "github.com/magabrotheeeer/subscribely/internal/services/account"
	authservice "github.com/magabrotheeeer/subscribely/internal/services/auth"
	catalogservice "github.com/magabrotheeeer/subscribely/internal/services/catalog"
	schedulerservice "github.com/magabrotheeeer/subscribely/internal/services/scheduler"
	subservice "github.com/magabrotheeeer/subscribely/internal/services/subscription"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

const shutdownTimeout = 15 * time.Second

// sweeper — фоновая очистка, работающая до отмены ctx.
type sweeper interface {
	Run(ctx context.Context, runOnStart bool)
}

// App — основное приложение.
type App struct {
	server     *http.Server
	grpcServer *grpc.Server
	grpcHealth *health.Server
	listener   net.Listener
	logger     *slog.Logger
	ledger     storage.Ledger
	sweeper    sweeper
	cfg        *config.Config
	closers    []func()
}

// New создает приложение: открывает хранилище, кеш и канал уведомлений,
// собирает сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ledger, check, err := bootstrap.Ledger(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	a := &App{
		logger: logger,
		ledger: ledger,
		cfg:    cfg,
	}

	listCache, closeCache, err := bootstrap.NewCache(ctx, cfg.RedisConnection, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeCache)

	notifier, closeNotifier, err := bootstrap.NewNotifier(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeNotifier)

	timeout := cfg.Storage.Timeout
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	authService := authservice.NewAuthService(ledger, jwtMaker, logger)
	scheduler := schedulerservice.NewSchedulerService(ledger, listCache, notifier, logger, loc, timeout)
	a.sweeper = scheduler
	services := Services{
		Auth:         authService,
		Account:      accountservice.NewAccountService(ledger, logger, timeout),
		Catalog:      catalogservice.NewCatalogService(ledger, listCache, logger, timeout, cfg.CacheTTL),
		Subscription: subservice.NewSubscriptionService(ledger, listCache, notifier, logger, timeout, cfg.CacheTTL),
		Scheduler:    scheduler,
		Health:       check,
	}

	if cfg.Admin.Email != "" {
		created, err := authService.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", slog.String("email", cfg.Admin.Email))
		}
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, services)

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	if cfg.GRPCAddress != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddress)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("grpc listen: %w", err)
		}
		a.listener = lis
		a.grpcServer = grpc.NewServer()
		a.grpcHealth = health.NewServer()
		healthpb.RegisterHealthServer(a.grpcServer, a.grpcHealth)
	}

	return a, nil
}

// Handler возвращает HTTP-обработчик приложения.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run запускает HTTP и gRPC серверы и, если настроено, встроенную очистку.
// Возвращается после отмены ctx или ошибки одного из серверов.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	if a.grpcServer != nil {
		a.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		go func() {
			a.logger.Info("gRPC health service listening on", slog.String("address", a.listener.Addr().String()))
			errCh <- a.grpcServer.Serve(a.listener)
		}()
	}

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	var sweeperWG sync.WaitGroup
	if a.cfg.Sweeper.Embedded {
		sweeperWG.Add(1)
		go func() {
			defer sweeperWG.Done()
			a.sweeper.Run(sweeperCtx, a.cfg.Sweeper.RunOnStart)
		}()
	}

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			a.logger.Error("server stopped", sl.Err(runErr))
		}
	case <-ctx.Done():
	}

	// очистка завершается до закрытия хранилища в close
	stopSweeper()
	sweeperWG.Wait()
	a.logger.Info("shutting down servers gracefully")
	if a.grpcServer != nil {
		a.grpcHealth.Shutdown()
		a.grpcServer.GracefulStop()
	}
	timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(timeoutCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.listener != nil {
		// после GracefulStop листенер уже закрыт, повторная ошибка не важна
		_ = a.listener.Close()
		a.listener = nil
	}
	if a.ledger != nil {
		a.ledger.Close()
		a.ledger = nil
	}
}
