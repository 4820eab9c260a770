// Package services содержит движок жизненного цикла купленных подписок:
// покупку, отмену и списки активных подписок с кешированием.
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/lib/renewal"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/metrics"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

// Ключи кеша списков подписок.
const (
	CacheKeyAll        = "subscriptions:all"
	cacheKeyUserPrefix = "subscriptions:user:"
)

// UserCacheKey возвращает ключ кеша списка активных подписок пользователя.
func UserCacheKey(userID string) string {
	return cacheKeyUserPrefix + userID
}

// SubscriptionRepository определяет методы хранилища, нужные движку.
type SubscriptionRepository interface {
	InUserTx(ctx context.Context, userID string, fn func(tx storage.PurchaseTx) error) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetSubscription(ctx context.Context, id string) (*models.PurchasedSubscription, error)
	DeactivateSubscription(ctx context.Context, id string, at time.Time) (bool, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.PurchasedSubscription, error)
	ListAllSubscriptions(ctx context.Context) ([]*models.AdminSubscriptionView, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Version возвращает поколение ключа, которое меняет каждый Invalidate.
	Version(key string) (int64, error)
	// SetIfVersion сохраняет значение, если поколение ключа всё ещё равно version.
	SetIfVersion(key string, version int64, value any, expiration time.Duration) (bool, error)
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// NotificationSink получает события жизненного цикла. Ошибка доставки
// не влияет на результат операции.
type NotificationSink interface {
	NotifyPurchased(ctx context.Context, user *models.User, sub *models.PurchasedSubscription) error
	NotifyCancelled(ctx context.Context, user *models.User, sub *models.PurchasedSubscription, byAdmin bool) error
}

// SubscriptionService реализует покупку и отмену подписок.
type SubscriptionService struct {
	repo     SubscriptionRepository
	cache    Cache
	notifier NotificationSink
	log      *slog.Logger

	timeout  time.Duration
	cacheTTL time.Duration
	now      func() time.Time
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
// timeout ограничивает каждую операцию с хранилищем, 0 отключает ограничение.
func NewSubscriptionService(repo SubscriptionRepository, cache Cache, notifier NotificationSink,
	log *slog.Logger, timeout, cacheTTL time.Duration) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		log:      log,
		timeout:  timeout,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (s *SubscriptionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Purchase проверяет условия покупки и в одной транзакции списывает цену
// и создаёт снимок подписки. Проверки выполняются в порядке: пользователь,
// позиция каталога, доступность позиции, повторная подписка, баланс, лимит.
func (s *SubscriptionService) Purchase(ctx context.Context, userID, catalogItemID string) (models.PurchaseResult, error) {
	const op = "services.subscription.Purchase"

	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("catalog_item_id", catalogItemID),
	)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		result  models.PurchaseResult
		user    *models.User
		created models.PurchasedSubscription
	)
	now := s.now()

	err := s.repo.InUserTx(ctx, userID, func(tx storage.PurchaseTx) error {
		user = tx.User()

		item, err := tx.CatalogItem(ctx, catalogItemID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound(apperr.EntityCatalogItem)
		}
		if err != nil {
			return err
		}
		if !item.Active {
			return apperr.Conflict(apperr.ReasonItemUnavailable, apperr.EntityCatalogItem)
		}

		active, err := tx.ActiveSubscriptions(ctx)
		if err != nil {
			return err
		}
		for _, a := range active {
			if a.CatalogItemID == item.ID {
				return apperr.Conflict(apperr.ReasonAlreadySubscribed, apperr.EntitySubscription)
			}
		}
		if user.Balance < item.Price {
			return apperr.Conflict(apperr.ReasonInsufficientFunds, apperr.EntityUser)
		}
		if len(active) >= models.MaxActiveSubscriptions {
			return apperr.Conflict(apperr.ReasonSubscriptionLimitReached, apperr.EntitySubscription)
		}

		interval := item.RenewalInterval
		if interval.IsZero() {
			log.Warn("catalog item has no valid renewal interval, using default",
				slog.String("default", renewal.Default.String()))
			interval = renewal.Default
		}

		newBalance := user.Balance - item.Price
		if err := tx.SetBalance(ctx, newBalance); err != nil {
			return err
		}

		created = models.PurchasedSubscription{
			UserID:        user.ID,
			CatalogItemID: item.ID,
			Snapshot: models.Snapshot{
				Name:            item.Name,
				Description:     item.Description,
				Price:           item.Price,
				RenewalInterval: interval.String(),
			},
			NextRenewal: interval.AddTo(now),
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		id, err := tx.InsertSubscription(ctx, created)
		if errors.Is(err, storage.ErrDuplicate) {
			return apperr.Conflict(apperr.ReasonAlreadySubscribed, apperr.EntitySubscription)
		}
		if err != nil {
			return err
		}
		created.ID = id

		user.Balance = newBalance
		result = models.PurchaseResult{NewBalance: newBalance, SubscriptionID: id}
		return nil
	})
	if err != nil {
		err = s.classify(op, err, apperr.EntityUser)
		metrics.Purchases.WithLabelValues(metrics.Result(err)).Inc()
		logFailure(log, "purchase rejected", err)
		return models.PurchaseResult{}, err
	}

	metrics.Purchases.WithLabelValues(metrics.Result(nil)).Inc()
	log.Info("subscription purchased",
		slog.String("subscription_id", result.SubscriptionID),
		slog.String("new_balance", result.NewBalance.String()),
	)

	s.invalidate(log, UserCacheKey(userID), CacheKeyAll)

	nctx, ncancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer ncancel()
	if err := s.notifier.NotifyPurchased(nctx, user, &created); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(models.EventPurchased)).Inc()
		log.Warn("failed to notify about purchase", sl.Err(err))
	}

	return result, nil
}

// Cancel переводит подписку в неактивное состояние. Отменить может владелец
// или администратор; деньги не возвращаются. Права проверяются раньше
// состояния: чужой пользователь получает Forbidden и для неактивной подписки.
func (s *SubscriptionService) Cancel(ctx context.Context, subscriptionID string, actor models.Actor) (models.CancelResult, error) {
	const op = "services.subscription.Cancel"

	log := s.log.With(
		slog.String("op", op),
		slog.String("subscription_id", subscriptionID),
		slog.String("actor_id", actor.UserID),
		slog.String("actor_role", string(actor.Role)),
	)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sub, byAdmin, err := s.cancel(ctx, subscriptionID, actor)
	actorLabel := "owner"
	if byAdmin {
		actorLabel = "admin"
	}
	if err != nil {
		err = s.classify(op, err, apperr.EntitySubscription)
		metrics.Cancellations.WithLabelValues(metrics.Result(err), actorLabel).Inc()
		logFailure(log, "cancellation rejected", err)
		return models.CancelResult{}, err
	}

	metrics.Cancellations.WithLabelValues(metrics.Result(nil), actorLabel).Inc()
	log.Info("subscription cancelled", slog.Bool("by_admin", byAdmin))

	s.invalidate(log, UserCacheKey(sub.UserID), CacheKeyAll)

	nctx, ncancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer ncancel()
	owner, err := s.repo.GetUser(nctx, sub.UserID)
	if err != nil {
		log.Warn("failed to load subscription owner for notification", sl.Err(err))
		return models.CancelResult{Name: sub.Name}, nil
	}
	if err := s.notifier.NotifyCancelled(nctx, owner, sub, byAdmin); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(models.EventCancelled)).Inc()
		log.Warn("failed to notify about cancellation", sl.Err(err))
	}

	return models.CancelResult{Name: sub.Name}, nil
}

func (s *SubscriptionService) cancel(ctx context.Context, subscriptionID string,
	actor models.Actor) (*models.PurchasedSubscription, bool, error) {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, false, err
	}
	if !actor.CanManage(sub.UserID) {
		return nil, false, apperr.Forbidden("subscription belongs to another user")
	}
	byAdmin := actor.Role.IsAdmin() && actor.UserID != sub.UserID

	if !sub.State().CanTransition(models.StateInactive) {
		return nil, byAdmin, apperr.Conflict(apperr.ReasonAlreadyInactive, apperr.EntitySubscription)
	}
	ok, err := s.repo.DeactivateSubscription(ctx, sub.ID, s.now())
	if err != nil {
		return nil, byAdmin, err
	}
	if !ok {
		return nil, byAdmin, apperr.Conflict(apperr.ReasonAlreadyInactive, apperr.EntitySubscription)
	}
	sub.Active = false
	return sub, byAdmin, nil
}

// ListUserActiveSubscriptions возвращает активные подписки пользователя.
func (s *SubscriptionService) ListUserActiveSubscriptions(ctx context.Context, userID string) ([]models.UserSubscriptionView, error) {
	const op = "services.subscription.ListUserActiveSubscriptions"

	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))
	key := UserCacheKey(userID)

	var cached []models.UserSubscriptionView
	if found, err := s.cache.Get(key, &cached); err != nil {
		log.Warn("failed to read from cache", slog.String("key", key), sl.Err(err))
	} else if found {
		return cached, nil
	}
	version, versionErr := s.cache.Version(key)
	if versionErr != nil {
		log.Warn("failed to read cache version", slog.String("key", key), sl.Err(versionErr))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	subs, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	result := make([]models.UserSubscriptionView, 0, len(subs))
	for _, sub := range subs {
		result = append(result, models.NewUserSubscriptionView(sub))
	}

	if versionErr == nil {
		s.store(log, key, version, result)
	}
	return result, nil
}

// ListAllSubscriptions возвращает все подписки для администратора.
// Проверка прав выполняется вызывающим.
func (s *SubscriptionService) ListAllSubscriptions(ctx context.Context) ([]*models.AdminSubscriptionView, error) {
	const op = "services.subscription.ListAllSubscriptions"

	log := s.log.With(slog.String("op", op))

	var cached []*models.AdminSubscriptionView
	if found, err := s.cache.Get(CacheKeyAll, &cached); err != nil {
		log.Warn("failed to read from cache", slog.String("key", CacheKeyAll), sl.Err(err))
	} else if found {
		return cached, nil
	}
	version, versionErr := s.cache.Version(CacheKeyAll)
	if versionErr != nil {
		log.Warn("failed to read cache version", slog.String("key", CacheKeyAll), sl.Err(versionErr))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.repo.ListAllSubscriptions(ctx)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}

	if versionErr == nil {
		s.store(log, CacheKeyAll, version, result)
	}
	return result, nil
}

// notifyTimeout ограничивает публикацию события после завершения операции.
const notifyTimeout = 5 * time.Second

// classify превращает ErrNotFound хранилища в NotFound(entity),
// остальное передаёт apperr.Classify.
func (s *SubscriptionService) classify(op string, err error, entity string) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) && errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(entity)
	}
	return apperr.Classify(op, err)
}

// store кеширует список, прочитанный при поколении version. Если ключ
// сбросили во время чтения, список устарел и не сохраняется.
func (s *SubscriptionService) store(log *slog.Logger, key string, version int64, value any) {
	stored, err := s.cache.SetIfVersion(key, version, value, s.cacheTTL)
	if err != nil {
		log.Warn("failed to add to cache", slog.String("key", key), sl.Err(err))
		return
	}
	if !stored {
		log.Debug("cache key changed during read, result not cached", slog.String("key", key))
	}
}

func (s *SubscriptionService) invalidate(log *slog.Logger, keys ...string) {
	for _, key := range keys {
		if err := s.cache.Invalidate(key); err != nil {
			log.Warn("failed to remove from cache", slog.String("key", key), sl.Err(err))
		}
	}
}

func logFailure(log *slog.Logger, msg string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindUnknown, apperr.KindTimeout:
		log.Error(msg, sl.Err(err), sl.Kind(err))
	default:
		log.Info(msg, sl.Kind(err))
	}
}

