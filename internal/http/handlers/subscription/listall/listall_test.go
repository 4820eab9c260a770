package listall

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/subscribely/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ListAllSubscriptions(ctx context.Context) ([]*models.AdminSubscriptionView, error) {
	args := m.Called(ctx)
	subs, _ := args.Get(0).([]*models.AdminSubscriptionView)
	return subs, args.Error(1)
}

func TestListAllHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		subs       []*models.AdminSubscriptionView
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name: "active and inactive",
			subs: []*models.AdminSubscriptionView{
				{ID: "s1", UserID: "u1", Username: "alice", Name: "Music", Price: 1999, Active: true},
				{ID: "s2", UserID: "u2", Username: "bob", Name: "Video", Price: 500, Active: false},
			},
			wantStatus: http.StatusOK,
			wantBody:   `"username":"bob"`,
		},
		{name: "empty", wantStatus: http.StatusOK, wantBody: `"data":[]`},
		{name: "storage error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantBody: `internal error`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("ListAllSubscriptions", mock.Anything).Return(tt.subs, tt.err).Once()

			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/subscriptions", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			svc.AssertExpectations(t)
		})
	}
}
