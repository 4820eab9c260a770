// Package memory реализует хранилище в памяти процесса. Купленные подписки
// хранятся в арене только для добавления: запись никогда не удаляется,
// меняется лишь флаг активности. Транзакции покупки сериализуются одним
// мьютексом, изменения применяются только при успешном завершении.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
)

// Store — хранилище в памяти.
type Store struct {
	mu sync.Mutex

	users        map[string]*models.User
	usersByEmail map[string]string
	catalog      map[string]*models.CatalogItem

	subs     []models.PurchasedSubscription
	subIndex map[string]int

	now func() time.Time
}

var _ storage.Ledger = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:        make(map[string]*models.User),
		usersByEmail: make(map[string]string),
		catalog:      make(map[string]*models.CatalogItem),
		subIndex:     make(map[string]int),
		now:          time.Now,
	}
}

// Close ничего не делает.
func (s *Store) Close() {}

func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateUser добавляет пользователя; e-mail уникален без учёта регистра.
func (s *Store) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "memory.CreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := s.usersByEmail[email]; ok {
		return "", fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = &user
	s.usersByEmail[email] = user.ID
	return user.ID, nil
}

// GetUser возвращает копию пользователя.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "memory.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail ищет пользователя по e-mail без учёта регистра.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "memory.GetUserByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	cp := *s.users[id]
	return &cp, nil
}

// SearchUsers ищет подстроку в имени или e-mail.
func (s *Store) SearchUsers(ctx context.Context, term string, limit int) ([]*models.User, error) {
	const op = "memory.SearchUsers"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	term = strings.ToLower(term)
	var result []*models.User
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Name), term) || strings.Contains(strings.ToLower(u.Email), term) {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SetBalance перезаписывает баланс пользователя.
func (s *Store) SetBalance(ctx context.Context, id string, balance money.Amount) error {
	const op = "memory.SetBalance"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	u.Balance = balance
	u.UpdatedAt = s.now()
	return nil
}

// CreateCatalogItem добавляет позицию каталога.
func (s *Store) CreateCatalogItem(ctx context.Context, item models.CatalogItem) (string, error) {
	const op = "memory.CreateCatalogItem"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	item.UpdatedAt = item.CreatedAt
	s.catalog[item.ID] = &item
	return item.ID, nil
}

// GetCatalogItem возвращает копию позиции каталога.
func (s *Store) GetCatalogItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	const op = "memory.GetCatalogItem"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.catalogItemLocked(op, id)
}

func (s *Store) catalogItemLocked(op, id string) (*models.CatalogItem, error) {
	item, ok := s.catalog[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	cp := *item
	return &cp, nil
}

// ListCatalogItems возвращает позиции, новые первыми.
func (s *Store) ListCatalogItems(ctx context.Context, onlyActive bool) ([]*models.CatalogItem, error) {
	const op = "memory.ListCatalogItems"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.CatalogItem, 0, len(s.catalog))
	for _, item := range s.catalog {
		if onlyActive && !item.Active {
			continue
		}
		cp := *item
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Name < result[j].Name
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteCatalogItem удаляет позицию. Купленные подписки не затрагиваются.
func (s *Store) DeleteCatalogItem(ctx context.Context, id string) error {
	const op = "memory.DeleteCatalogItem"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog[id]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.catalog, id)
	return nil
}

// SetCatalogItemActive меняет флаг доступности позиции.
func (s *Store) SetCatalogItemActive(ctx context.Context, id string, active bool) error {
	const op = "memory.SetCatalogItemActive"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.catalog[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	item.Active = active
	item.UpdatedAt = s.now()
	return nil
}

// GetSubscription возвращает копию записи из арены.
func (s *Store) GetSubscription(ctx context.Context, id string) (*models.PurchasedSubscription, error) {
	const op = "memory.GetSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.subIndex[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	cp := s.subs[idx]
	return &cp, nil
}

// DeactivateSubscription выполняет compare-and-set active: true -> false.
func (s *Store) DeactivateSubscription(ctx context.Context, id string, at time.Time) (bool, error) {
	const op = "memory.DeactivateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.subIndex[id]
	if !ok {
		return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	sub := &s.subs[idx]
	if !sub.State().CanTransition(models.StateInactive) {
		return false, nil
	}
	sub.Active = false
	sub.UpdatedAt = at
	return true, nil
}

// ListActiveByUser возвращает активные подписки пользователя в порядке покупки.
func (s *Store) ListActiveByUser(ctx context.Context, userID string) ([]*models.PurchasedSubscription, error) {
	const op = "memory.ListActiveByUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.activeByUserLocked(userID), nil
}

func (s *Store) activeByUserLocked(userID string) []*models.PurchasedSubscription {
	var result []*models.PurchasedSubscription
	for i := range s.subs {
		if s.subs[i].UserID == userID && s.subs[i].Active {
			cp := s.subs[i]
			result = append(result, &cp)
		}
	}
	return result
}

// ListAllSubscriptions возвращает все записи арены, новые первыми.
func (s *Store) ListAllSubscriptions(ctx context.Context) ([]*models.AdminSubscriptionView, error) {
	const op = "memory.ListAllSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.AdminSubscriptionView, 0, len(s.subs))
	for i := len(s.subs) - 1; i >= 0; i-- {
		sub := s.subs[i]
		var username string
		if u, ok := s.users[sub.UserID]; ok {
			username = u.Name
		}
		result = append(result, &models.AdminSubscriptionView{
			ID:          sub.ID,
			UserID:      sub.UserID,
			Username:    username,
			Name:        sub.Name,
			Price:       sub.Price,
			NextRenewal: sub.NextRenewal,
			Active:      sub.Active,
		})
	}
	return result, nil
}

// FindExpired возвращает активные подписки с NextRenewal < now.
func (s *Store) FindExpired(ctx context.Context, now time.Time) ([]*models.PurchasedSubscription, error) {
	const op = "memory.FindExpired"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.PurchasedSubscription
	for i := range s.subs {
		if s.subs[i].Active && s.subs[i].NextRenewal.Before(now) {
			cp := s.subs[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

// InUserTx держит мьютекс хранилища на всё время fn.
func (s *Store) InUserTx(ctx context.Context, userID string, fn func(tx storage.PurchaseTx) error) error {
	const op = "memory.InUserTx"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	tx := &purchaseTx{store: s, user: *u, balance: u.Balance}
	if err := fn(tx); err != nil {
		return err
	}
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type purchaseTx struct {
	store      *Store
	user       models.User
	balance    money.Amount
	balanceSet bool
	staged     []models.PurchasedSubscription
}

func (t *purchaseTx) User() *models.User {
	cp := t.user
	return &cp
}

func (t *purchaseTx) CatalogItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	const op = "memory.tx.CatalogItem"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	return t.store.catalogItemLocked(op, id)
}

func (t *purchaseTx) ActiveSubscriptions(ctx context.Context) ([]*models.PurchasedSubscription, error) {
	const op = "memory.tx.ActiveSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	result := t.store.activeByUserLocked(t.user.ID)
	for i := range t.staged {
		cp := t.staged[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (t *purchaseTx) SetBalance(ctx context.Context, balance money.Amount) error {
	const op = "memory.tx.SetBalance"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	t.balance = balance
	t.balanceSet = true
	return nil
}

func (t *purchaseTx) InsertSubscription(ctx context.Context, sub models.PurchasedSubscription) (string, error) {
	const op = "memory.tx.InsertSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}

	active, err := t.ActiveSubscriptions(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range active {
		if a.CatalogItemID == sub.CatalogItemID {
			return "", fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
		}
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.UserID = t.user.ID
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = t.store.now()
	}
	sub.UpdatedAt = sub.CreatedAt
	t.staged = append(t.staged, sub)
	return sub.ID, nil
}

func (t *purchaseTx) commit() {
	s := t.store
	if t.balanceSet {
		u := s.users[t.user.ID]
		u.Balance = t.balance
		u.UpdatedAt = s.now()
	}
	for _, sub := range t.staged {
		s.subIndex[sub.ID] = len(s.subs)
		s.subs = append(s.subs, sub)
	}
}
