// Package services реализует управление каталогом предложений подписок.
package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/lib/renewal"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

// CacheKeyActive — ключ кеша витрины активных позиций.
const CacheKeyActive = "catalog:active"

const minNameLength = 3

// CatalogRepository определяет методы хранилища для каталога.
type CatalogRepository interface {
	CreateCatalogItem(ctx context.Context, item models.CatalogItem) (string, error)
	ListCatalogItems(ctx context.Context, onlyActive bool) ([]*models.CatalogItem, error)
	DeleteCatalogItem(ctx context.Context, id string) error
	SetCatalogItemActive(ctx context.Context, id string, active bool) error
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Version(key string) (int64, error)
	SetIfVersion(key string, version int64, value any, expiration time.Duration) (bool, error)
	Invalidate(key string) error
}

// CatalogService управляет позициями каталога.
type CatalogService struct {
	repo     CatalogRepository
	cache    Cache
	log      *slog.Logger
	timeout  time.Duration
	cacheTTL time.Duration
}

// NewCatalogService создает новый экземпляр CatalogService.
func NewCatalogService(repo CatalogRepository, cache Cache, log *slog.Logger, timeout, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		repo:     repo,
		cache:    cache,
		log:      log,
		timeout:  timeout,
		cacheTTL: cacheTTL,
	}
}

func (s *CatalogService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Create проверяет запрос и добавляет позицию каталога.
// Пустой интервал продления означает один месяц. Без флага активности позиция создаётся активной.
func (s *CatalogService) Create(ctx context.Context, req models.CreateCatalogItemRequest) (string, error) {
	const op = "services.catalog.Create"

	item, err := newCatalogItem(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id, err := s.repo.CreateCatalogItem(ctx, item)
	if err != nil {
		return "", apperr.Classify(op, err)
	}

	s.log.Info("catalog item created",
		slog.String("op", op),
		slog.String("catalog_item_id", id),
		slog.String("name", item.Name),
	)
	s.invalidate(op)
	return id, nil
}

func newCatalogItem(req models.CreateCatalogItemRequest) (models.CatalogItem, error) {
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < minNameLength {
		return models.CatalogItem{}, apperr.Validation("name must be at least 3 characters", nil)
	}

	price, err := req.Price.Amount()
	if err != nil {
		return models.CatalogItem{}, apperr.Validation("price must be a decimal number", err)
	}
	if price < 0 {
		return models.CatalogItem{}, apperr.Validation("price must not be negative", nil)
	}

	interval, err := renewal.ParseOrDefault(strings.TrimSpace(req.RenewalInterval))
	if err != nil {
		return models.CatalogItem{}, apperr.Validation("renewal interval must look like 1m, 2w or 1y", err)
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return models.CatalogItem{
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		Price:           price,
		RenewalInterval: interval,
		Active:          active,
	}, nil
}

// List возвращает позиции каталога. Витрина активных позиций кешируется.
func (s *CatalogService) List(ctx context.Context, onlyActive bool) ([]*models.CatalogItem, error) {
	const op = "services.catalog.List"

	var (
		version    int64
		versionErr error
	)
	if onlyActive {
		var cached []*models.CatalogItem
		found, err := s.cache.Get(CacheKeyActive, &cached)
		if err != nil {
			s.log.Warn("failed to read from cache", slog.String("op", op), sl.Err(err))
		} else if found {
			return cached, nil
		}
		// поколение фиксируется до чтения, чтобы не вернуть в кеш список,
		// устаревший из-за параллельного изменения
		version, versionErr = s.cache.Version(CacheKeyActive)
		if versionErr != nil {
			s.log.Warn("failed to read cache version", slog.String("op", op), sl.Err(versionErr))
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	items, err := s.repo.ListCatalogItems(ctx, onlyActive)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}

	if onlyActive && versionErr == nil {
		stored, err := s.cache.SetIfVersion(CacheKeyActive, version, items, s.cacheTTL)
		if err != nil {
			s.log.Warn("failed to add to cache", slog.String("op", op), sl.Err(err))
		} else if !stored {
			s.log.Debug("cache key changed during read, result not cached", slog.String("op", op))
		}
	}
	return items, nil
}

// Delete удаляет позицию каталога. Купленные подписки сохраняют свой снимок.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	const op = "services.catalog.Delete"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.repo.DeleteCatalogItem(ctx, id); err != nil {
		return s.mapErr(op, err)
	}

	s.log.Info("catalog item deleted", slog.String("op", op), slog.String("catalog_item_id", id))
	s.invalidate(op)
	return nil
}

// SetActive включает или скрывает позицию каталога.
func (s *CatalogService) SetActive(ctx context.Context, id string, active bool) error {
	const op = "services.catalog.SetActive"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.repo.SetCatalogItemActive(ctx, id, active); err != nil {
		return s.mapErr(op, err)
	}

	s.log.Info("catalog item toggled",
		slog.String("op", op),
		slog.String("catalog_item_id", id),
		slog.Bool("active", active),
	)
	s.invalidate(op)
	return nil
}

func (s *CatalogService) mapErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(apperr.EntityCatalogItem)
	}
	return apperr.Classify(op, err)
}

func (s *CatalogService) invalidate(op string) {
	if err := s.cache.Invalidate(CacheKeyActive); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("op", op), sl.Err(err))
	}
}
