// Package services содержит планировщик, деактивирующий подписки
// с истёкшей датой продления.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/metrics"
	"github.com/magabrotheeeer/subscribely/internal/models"
	subservice "github.com/magabrotheeeer/subscribely/internal/services/subscription"
)

// SubscriptionRepository определяет методы хранилища для очистки.
type SubscriptionRepository interface {
	FindExpired(ctx context.Context, now time.Time) ([]*models.PurchasedSubscription, error)
	DeactivateSubscription(ctx context.Context, id string, at time.Time) (bool, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Cache сбрасывает закешированные списки.
type Cache interface {
	Invalidate(key string) error
}

// ExpiryNotifier отправляет уведомление об истечении подписки.
type ExpiryNotifier interface {
	NotifyExpired(ctx context.Context, user *models.User, sub *models.PurchasedSubscription) error
}

// SchedulerService раз в сутки деактивирует подписки, чья дата продления прошла.
// Повторного списания нет: подписка просто становится неактивной.
type SchedulerService struct {
	repo     SubscriptionRepository
	cache    Cache
	notifier ExpiryNotifier
	log      *slog.Logger
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
}

// NewSchedulerService создает новый экземпляр SchedulerService.
// loc задаёт часовой пояс, в котором отсчитывается полночь.
func NewSchedulerService(repo SubscriptionRepository, cache Cache, notifier ExpiryNotifier,
	log *slog.Logger, loc *time.Location, timeout time.Duration) *SchedulerService {
	if loc == nil {
		loc = time.UTC
	}
	return &SchedulerService{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		log:      log,
		loc:      loc,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Run запускает очистку каждый день в полночь до отмены ctx.
// При runOnStart первый проход выполняется сразу.
func (s *SchedulerService) Run(ctx context.Context, runOnStart bool) {
	const op = "services.scheduler.Run"

	log := s.log.With(slog.String("op", op), slog.String("timezone", s.loc.String()))

	if runOnStart {
		s.sweepLogged(ctx, log)
	}

	for {
		next := NextMidnight(s.now(), s.loc)
		log.Info("next expiration sweep scheduled", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("scheduler stopped")
			return
		case <-timer.C:
			s.sweepLogged(ctx, log)
		}
	}
}

func (s *SchedulerService) sweepLogged(ctx context.Context, log *slog.Logger) {
	processed, err := s.RunExpirationSweep(ctx)
	if err != nil {
		log.Error("expiration sweep failed, will retry at next tick", sl.Err(err))
		return
	}
	log.Info("expiration sweep finished", slog.Int("deactivated", processed))
}

// RunExpirationSweep деактивирует все активные подписки с датой продления
// раньше текущего момента и возвращает число деактивированных записей.
// Ошибка отдельной записи пропускается, ошибка выборки прерывает проход.
func (s *SchedulerService) RunExpirationSweep(ctx context.Context) (int, error) {
	const op = "services.scheduler.RunExpirationSweep"

	log := s.log.With(slog.String("op", op))
	now := s.now()

	findCtx, cancel := s.withTimeout(ctx)
	expired, err := s.repo.FindExpired(findCtx, now)
	cancel()
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(expired) == 0 {
		metrics.SweepRuns.WithLabelValues("ok").Inc()
		log.Info("no expired subscriptions found")
		return 0, nil
	}
	log.Info("found expired subscriptions", slog.Int("count", len(expired)))

	processed := 0
	for _, sub := range expired {
		if err := ctx.Err(); err != nil {
			metrics.SweepRuns.WithLabelValues("error").Inc()
			return processed, fmt.Errorf("%s: %w", op, err)
		}
		if s.expire(ctx, log, sub, now) {
			processed++
		}
	}

	metrics.SweepRuns.WithLabelValues("ok").Inc()
	metrics.SweepDeactivated.Add(float64(processed))
	return processed, nil
}

func (s *SchedulerService) expire(ctx context.Context, log *slog.Logger, sub *models.PurchasedSubscription, now time.Time) bool {
	log = log.With(slog.String("subscription_id", sub.ID), slog.String("user_id", sub.UserID))

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.repo.DeactivateSubscription(opCtx, sub.ID, now)
	if err != nil {
		log.Error("failed to deactivate subscription", sl.Err(err))
		return false
	}
	if !ok {
		log.Debug("subscription already inactive")
		return false
	}
	sub.Active = false

	for _, key := range []string{subservice.UserCacheKey(sub.UserID), subservice.CacheKeyAll} {
		if err := s.cache.Invalidate(key); err != nil {
			log.Warn("failed to remove from cache", slog.String("key", key), sl.Err(err))
		}
	}

	user, err := s.repo.GetUser(opCtx, sub.UserID)
	if err != nil {
		log.Warn("failed to load subscription owner for notification", sl.Err(err))
		return true
	}
	if err := s.notifier.NotifyExpired(opCtx, user, sub); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(models.EventExpired)).Inc()
		log.Warn("failed to notify about expiration", sl.Err(err))
	}
	return true
}

func (s *SchedulerService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// NextMidnight возвращает ближайшую полночь после now в часовом поясе loc.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}
