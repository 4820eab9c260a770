package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/lib/renewal"
	"github.com/magabrotheeeer/subscribely/internal/models"
	"github.com/magabrotheeeer/subscribely/internal/storage"
	"github.com/magabrotheeeer/subscribely/internal/storage/memory"
)

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Version(key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CacheMock) SetIfVersion(key string, version int64, value any, expiration time.Duration) (bool, error) {
	args := m.Called(key, version, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type NotifierMock struct{ mock.Mock }

func (m *NotifierMock) NotifyPurchased(ctx context.Context, user *models.User, sub *models.PurchasedSubscription) error {
	args := m.Called(ctx, user, sub)
	return args.Error(0)
}

func (m *NotifierMock) NotifyCancelled(ctx context.Context, user *models.User, sub *models.PurchasedSubscription, byAdmin bool) error {
	args := m.Called(ctx, user, sub, byAdmin)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lenientCache пропускает кеш: промахи на чтение, успешная запись и сброс.
func lenientCache() *CacheMock {
	c := &CacheMock{}
	c.On("Get", mock.Anything, mock.Anything).Return(false, nil).Maybe()
	c.On("Version", mock.Anything).Return(int64(0), nil).Maybe()
	c.On("SetIfVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	c.On("Invalidate", mock.Anything).Return(nil).Maybe()
	return c
}

func lenientNotifier() *NotifierMock {
	n := &NotifierMock{}
	n.On("NotifyPurchased", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("NotifyCancelled", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return n
}

type fixture struct {
	store    *memory.Store
	cache    *CacheMock
	notifier *NotifierMock
	svc      *SubscriptionService
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		cache:    lenientCache(),
		notifier: lenientNotifier(),
		now:      time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewSubscriptionService(f.store, f.cache, f.notifier, discardLogger(), time.Second, time.Minute)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) user(t *testing.T, name string, balance money.Amount, role models.Role) string {
	t.Helper()
	id, err := f.store.CreateUser(context.Background(), models.User{
		Name:    name,
		Email:   name + "@example.com",
		Balance: balance,
		Role:    role,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) item(t *testing.T, name string, price money.Amount, interval renewal.Interval, active bool) string {
	t.Helper()
	id, err := f.store.CreateCatalogItem(context.Background(), models.CatalogItem{
		Name:            name,
		Description:     name + " plan",
		Price:           price,
		RenewalInterval: interval,
		Active:          active,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) balance(t *testing.T, userID string) money.Amount {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Balance
}

func (f *fixture) activeCount(t *testing.T, userID string) int {
	t.Helper()
	subs, err := f.store.ListActiveByUser(context.Background(), userID)
	require.NoError(t, err)
	return len(subs)
}

func TestPurchase_DebitsAndCreatesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", 10000, models.RoleUser)
	music := f.item(t, "Music", 1999, renewal.Interval{Count: 1, Unit: renewal.Month}, true)

	res, err := f.svc.Purchase(ctx, alice, music)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(8001), res.NewBalance)
	assert.NotEmpty(t, res.SubscriptionID)
	assert.Equal(t, money.Amount(8001), f.balance(t, alice))

	sub, err := f.store.GetSubscription(ctx, res.SubscriptionID)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, "Music", sub.Name)
	assert.Equal(t, money.Amount(1999), sub.Price)
	assert.Equal(t, "1m", sub.RenewalInterval)
	assert.Equal(t, time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC), sub.NextRenewal)

	f.cache.AssertCalled(t, "Invalidate", UserCacheKey(alice))
	f.cache.AssertCalled(t, "Invalidate", CacheKeyAll)
	f.notifier.AssertCalled(t, "NotifyPurchased", mock.Anything,
		mock.MatchedBy(func(u *models.User) bool { return u.ID == alice && u.Balance == 8001 }),
		mock.MatchedBy(func(s *models.PurchasedSubscription) bool { return s.ID == res.SubscriptionID }))

	_, err = f.svc.Purchase(ctx, alice, music)
	require.ErrorIs(t, err, apperr.ErrAlreadySubscribed)
	assert.Equal(t, money.Amount(8001), f.balance(t, alice))
	assert.Equal(t, 1, f.activeCount(t, alice))
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	f := newFixture(t)

	bob := f.user(t, "bob", 500, models.RoleUser)
	pro := f.item(t, "Pro", 1999, renewal.Default, true)

	_, err := f.svc.Purchase(context.Background(), bob, pro)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, money.Amount(500), f.balance(t, bob))
	assert.Equal(t, 0, f.activeCount(t, bob))
	f.notifier.AssertNotCalled(t, "NotifyPurchased", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchase_ExactBalanceAllowed(t *testing.T) {
	f := newFixture(t)

	u := f.user(t, "exact", 1999, models.RoleUser)
	item := f.item(t, "Exact", 1999, renewal.Default, true)

	res, err := f.svc.Purchase(context.Background(), u, item)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), res.NewBalance)
}

func TestPurchase_LimitReached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	carol := f.user(t, "carol", 100000, models.RoleUser)
	for _, name := range []string{"A", "B", "C"} {
		_, err := f.svc.Purchase(ctx, carol, f.item(t, name, 500, renewal.Default, true))
		require.NoError(t, err)
	}
	fourth := f.item(t, "D", 500, renewal.Default, true)

	_, err := f.svc.Purchase(ctx, carol, fourth)
	require.ErrorIs(t, err, apperr.ErrSubscriptionLimitReached)
	assert.Equal(t, money.Amount(100000-3*500), f.balance(t, carol))
	assert.Equal(t, 3, f.activeCount(t, carol))
}

func TestPurchase_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	poor := f.user(t, "poorfull", 1500, models.RoleUser)
	for _, name := range []string{"A", "B", "C"} {
		_, err := f.svc.Purchase(ctx, poor, f.item(t, name, 500, renewal.Default, true))
		require.NoError(t, err)
	}
	expensive := f.item(t, "Expensive", 9999, renewal.Default, true)
	hidden := f.item(t, "Hidden", 100, renewal.Default, false)

	tests := []struct {
		name    string
		userID  string
		itemID  string
		wantErr error
	}{
		{"unknown user", "00000000-0000-0000-0000-000000000000", expensive, apperr.ErrUserNotFound},
		{"unknown item", poor, "00000000-0000-0000-0000-000000000000", apperr.ErrCatalogItemNotFound},
		{"inactive item before limits", poor, hidden, apperr.ErrItemUnavailable},
		{"funds before limit", poor, expensive, apperr.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Purchase(ctx, tt.userID, tt.itemID)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPurchase_DefaultIntervalFallback(t *testing.T) {
	f := newFixture(t)

	u := f.user(t, "legacy", 5000, models.RoleUser)
	item := f.item(t, "Legacy", 100, renewal.Interval{}, true)

	res, err := f.svc.Purchase(context.Background(), u, item)
	require.NoError(t, err)

	sub, err := f.store.GetSubscription(context.Background(), res.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, renewal.Default.String(), sub.RenewalInterval)
	assert.Equal(t, renewal.Default.AddTo(f.now), sub.NextRenewal)
}

func TestPurchase_ConcurrentRespectsLimit(t *testing.T) {
	tests := []struct {
		name        string
		existing    int
		wantSuccess int
		wantErr     error
	}{
		{"one slot left", 2, 1, apperr.ErrSubscriptionLimitReached},
		{"no slots left", 3, 0, apperr.ErrSubscriptionLimitReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			u := f.user(t, "racer", 100000, models.RoleUser)
			for i := range tt.existing {
				name := string(rune('A' + i))
				_, err := f.svc.Purchase(ctx, u, f.item(t, name, 100, renewal.Default, true))
				require.NoError(t, err)
			}
			x := f.item(t, "X", 100, renewal.Default, true)
			y := f.item(t, "Y", 100, renewal.Default, true)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, id := range []string{x, y} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = f.svc.Purchase(ctx, u, id)
				}()
			}
			wg.Wait()

			success := 0
			for _, err := range errs {
				if err == nil {
					success++
					continue
				}
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantSuccess, success)
			assert.Equal(t, models.MaxActiveSubscriptions, f.activeCount(t, u))
			assert.Equal(t, money.Amount(100000-100*models.MaxActiveSubscriptions), f.balance(t, u))
		})
	}
}

func TestPurchase_NotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	notifier := &NotifierMock{}
	notifier.On("NotifyPurchased", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker down")).Once()
	f.svc.notifier = notifier

	u := f.user(t, "dave", 5000, models.RoleUser)
	item := f.item(t, "News", 300, renewal.Default, true)

	res, err := f.svc.Purchase(context.Background(), u, item)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(4700), res.NewBalance)
	notifier.AssertExpectations(t)
}

type blockingRepo struct {
	SubscriptionRepository
}

func (blockingRepo) InUserTx(ctx context.Context, _ string, _ func(tx storage.PurchaseTx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingRepo) GetSubscription(ctx context.Context, _ string) (*models.PurchasedSubscription, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeouts(t *testing.T) {
	svc := NewSubscriptionService(blockingRepo{}, lenientCache(), lenientNotifier(),
		discardLogger(), 20*time.Millisecond, time.Minute)

	_, err := svc.Purchase(context.Background(), "u", "i")
	require.ErrorIs(t, err, apperr.ErrTimeout)

	_, err = svc.Cancel(context.Background(), "s", models.Actor{UserID: "u", Role: models.RoleUser})
	require.ErrorIs(t, err, apperr.ErrTimeout)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.user(t, "owner", 10000, models.RoleUser)
	other := f.user(t, "other", 10000, models.RoleUser)
	admin := f.user(t, "admin", 0, models.RoleAdmin)
	item := f.item(t, "Video", 1500, renewal.Default, true)

	res, err := f.svc.Purchase(ctx, owner, item)
	require.NoError(t, err)

	t.Run("foreign user is forbidden", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, res.SubscriptionID, models.Actor{UserID: other, Role: models.RoleUser})
		require.ErrorIs(t, err, apperr.ErrForbidden)
		assert.Equal(t, 1, f.activeCount(t, owner))
	})

	t.Run("unknown subscription", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, "00000000-0000-0000-0000-000000000000", models.Actor{UserID: owner, Role: models.RoleUser})
		require.ErrorIs(t, err, apperr.ErrSubscriptionNotFound)
	})

	t.Run("owner cancels without refund", func(t *testing.T) {
		out, err := f.svc.Cancel(ctx, res.SubscriptionID, models.Actor{UserID: owner, Role: models.RoleUser})
		require.NoError(t, err)
		assert.Equal(t, "Video", out.Name)
		assert.Equal(t, money.Amount(8500), f.balance(t, owner))
		assert.Equal(t, 0, f.activeCount(t, owner))
		f.notifier.AssertCalled(t, "NotifyCancelled", mock.Anything, mock.Anything, mock.Anything, false)
	})

	t.Run("second cancel conflicts", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, res.SubscriptionID, models.Actor{UserID: owner, Role: models.RoleUser})
		require.ErrorIs(t, err, apperr.ErrAlreadyInactive)
	})

	t.Run("foreign user does not learn the state of an inactive subscription", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, res.SubscriptionID, models.Actor{UserID: other, Role: models.RoleUser})
		require.ErrorIs(t, err, apperr.ErrForbidden)
		assert.NotErrorIs(t, err, apperr.ErrAlreadyInactive)
	})

	t.Run("admin cancels foreign subscription", func(t *testing.T) {
		again, err := f.svc.Purchase(ctx, owner, item)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, again.SubscriptionID, models.Actor{UserID: admin, Role: models.RoleAdmin})
		require.NoError(t, err)
		f.notifier.AssertCalled(t, "NotifyCancelled", mock.Anything,
			mock.MatchedBy(func(u *models.User) bool { return u.ID == owner }),
			mock.Anything, true)
	})
}

func TestCancel_ConcurrentExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.user(t, "twice", 5000, models.RoleUser)
	res, err := f.svc.Purchase(ctx, u, f.item(t, "Once", 100, renewal.Default, true))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Cancel(ctx, res.SubscriptionID, models.Actor{UserID: u, Role: models.RoleUser})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyInactive)
	}
	assert.Equal(t, 1, ok)
}

func TestSnapshotSurvivesCatalogChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.user(t, "snap", 5000, models.RoleUser)
	item := f.item(t, "Snap", 700, renewal.Interval{Count: 1, Unit: renewal.Year}, true)
	res, err := f.svc.Purchase(ctx, u, item)
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteCatalogItem(ctx, item))

	list, err := f.svc.ListUserActiveSubscriptions(ctx, u)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.SubscriptionID, list[0].ID)
	assert.Equal(t, "Snap", list[0].Name)
	assert.Equal(t, money.Amount(700), list[0].Price)
	assert.Equal(t, "1y", list[0].RenewalInterval)
}

func TestListUserActiveSubscriptions_Cache(t *testing.T) {
	t.Run("cache hit skips repository", func(t *testing.T) {
		cache := &CacheMock{}
		cache.On("Get", UserCacheKey("u1"), mock.Anything).Return(true, nil).Once()

		svc := NewSubscriptionService(blockingRepo{}, cache, lenientNotifier(), discardLogger(), time.Second, time.Minute)
		_, err := svc.ListUserActiveSubscriptions(context.Background(), "u1")
		require.NoError(t, err)
		cache.AssertExpectations(t)
	})

	t.Run("cache errors fall through", func(t *testing.T) {
		f := newFixture(t)
		cache := &CacheMock{}
		cache.On("Get", mock.Anything, mock.Anything).Return(false, errors.New("redis down")).Once()
		cache.On("Version", mock.Anything).Return(int64(0), nil).Once()
		cache.On("SetIfVersion", mock.Anything, int64(0), mock.Anything, time.Minute).Return(false, errors.New("redis down")).Once()
		f.svc.cache = cache

		u := f.user(t, "nocache", 0, models.RoleUser)
		list, err := f.svc.ListUserActiveSubscriptions(context.Background(), u)
		require.NoError(t, err)
		assert.Empty(t, list)
		cache.AssertExpectations(t)
	})
}

// versionedCache хранит значения в памяти с поколениями ключей.
// beforeSet выполняется один раз перед первой записью и имитирует
// изменение, завершившееся между чтением хранилища и записью в кеш.
type versionedCache struct {
	mu        sync.Mutex
	values    map[string][]byte
	versions  map[string]int64
	beforeSet func()
}

func newVersionedCache() *versionedCache {
	return &versionedCache{values: map[string][]byte{}, versions: map[string]int64{}}
}

func (c *versionedCache) Get(key string, result any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, result)
}

func (c *versionedCache) Version(key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key], nil
}

func (c *versionedCache) SetIfVersion(key string, version int64, value any, _ time.Duration) (bool, error) {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[key] != version {
		return false, nil
	}
	c.values[key] = raw
	return true, nil
}

func (c *versionedCache) Invalidate(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[key]++
	delete(c.values, key)
	return nil
}

func TestListUserActiveSubscriptions_PurchaseDuringRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := newVersionedCache()
	f.svc.cache = cache

	alice := f.user(t, "alice", 5000, models.RoleUser)
	music := f.item(t, "Music", 1999, renewal.Default, true)

	cache.beforeSet = func() {
		_, err := f.svc.Purchase(ctx, alice, music)
		require.NoError(t, err)
	}

	// список прочитан до покупки и не должен попасть в кеш
	stale, err := f.svc.ListUserActiveSubscriptions(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, stale)

	list, err := f.svc.ListUserActiveSubscriptions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Music", list[0].Name)
	assert.Equal(t, f.activeCount(t, alice), len(list))

	cached, err := f.svc.ListUserActiveSubscriptions(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

func TestListAllSubscriptions_CancelDuringRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := newVersionedCache()
	f.svc.cache = cache

	bob := f.user(t, "bob", 5000, models.RoleUser)
	item := f.item(t, "News", 500, renewal.Default, true)
	res, err := f.svc.Purchase(ctx, bob, item)
	require.NoError(t, err)

	cache.beforeSet = func() {
		_, err := f.svc.Cancel(ctx, res.SubscriptionID, models.Actor{UserID: bob, Role: models.RoleUser})
		require.NoError(t, err)
	}

	stale, err := f.svc.ListAllSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.True(t, stale[0].Active)

	fresh, err := f.svc.ListAllSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.False(t, fresh[0].Active)
}

func TestListAllSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.user(t, "first", 5000, models.RoleUser)
	b := f.user(t, "second", 5000, models.RoleUser)
	item := f.item(t, "Shared", 100, renewal.Default, true)

	ra, err := f.svc.Purchase(ctx, a, item)
	require.NoError(t, err)
	_, err = f.svc.Purchase(ctx, b, item)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, ra.SubscriptionID, models.Actor{UserID: a, Role: models.RoleUser})
	require.NoError(t, err)

	all, err := f.svc.ListAllSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byUser := map[string]*models.AdminSubscriptionView{}
	for _, v := range all {
		byUser[v.Username] = v
	}
	assert.False(t, byUser["first"].Active)
	assert.True(t, byUser["second"].Active)
	f.cache.AssertCalled(t, "SetIfVersion", CacheKeyAll, int64(0), mock.Anything, time.Minute)
}
