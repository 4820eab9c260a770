package list

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscribely/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ListUserActiveSubscriptions(ctx context.Context, userID string) ([]models.UserSubscriptionView, error) {
	args := m.Called(ctx, userID)
	subs, _ := args.Get(0).([]models.UserSubscriptionView)
	return subs, args.Error(1)
}

func TestListHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)

	t.Run("own subscriptions", func(t *testing.T) {
		svc := new(MockService)
		svc.On("ListUserActiveSubscriptions", mock.Anything, "u1").Return([]models.UserSubscriptionView{
			{ID: "s1", Name: "Music", Price: 1999, NextRenewal: next, RenewalInterval: "1m"},
		}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
		req = req.WithContext(middlewarectx.WithActor(req.Context(), models.Actor{UserID: "u1", Role: models.RoleUser}))
		w := httptest.NewRecorder()
		New(logger, svc).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Status string                        `json:"status"`
			Data   []models.UserSubscriptionView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "Music", resp.Data[0].Name)
		assert.True(t, next.Equal(resp.Data[0].NextRenewal))
		svc.AssertExpectations(t)
	})

	t.Run("nothing active", func(t *testing.T) {
		svc := new(MockService)
		svc.On("ListUserActiveSubscriptions", mock.Anything, "u1").Return(nil, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
		req = req.WithContext(middlewarectx.WithActor(req.Context(), models.Actor{UserID: "u1", Role: models.RoleUser}))
		w := httptest.NewRecorder()
		New(logger, svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"OK","data":[]}`, w.Body.String())
	})

	t.Run("timeout", func(t *testing.T) {
		svc := new(MockService)
		svc.On("ListUserActiveSubscriptions", mock.Anything, "u1").
			Return(nil, apperr.Classify("op", context.DeadlineExceeded)).Once()

		req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
		req = req.WithContext(middlewarectx.WithActor(req.Context(), models.Actor{UserID: "u1", Role: models.RoleUser}))
		w := httptest.NewRecorder()
		New(logger, svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})
}
