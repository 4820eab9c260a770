package balance

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/lib/money"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) SetUserBalance(ctx context.Context, userID string, balance money.Amount) error {
	args := m.Called(ctx, userID, balance)
	return args.Error(0)
}

func TestBalanceHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "число",
			body: `{"balance": 250.5}`,
			setupMock: func(m *MockService) {
				m.On("SetUserBalance", mock.Anything, "u1", money.Amount(25050)).Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"balance":250.50`,
		},
		{
			name: "строка",
			body: `{"balance": "10"}`,
			setupMock: func(m *MockService) {
				m.On("SetUserBalance", mock.Anything, "u1", money.Amount(1000)).Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"balance":10.00`,
		},
		{
			name:           "три знака после точки",
			body:           `{"balance": 1.005}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "без поля",
			body:           `{}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Balance is a required field`,
		},
		{
			name:           "битый JSON",
			body:           `balance`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "отрицательный",
			body: `{"balance": -1}`,
			setupMock: func(m *MockService) {
				m.On("SetUserBalance", mock.Anything, "u1", money.Amount(-100)).
					Return(apperr.Validation("balance must be between 0 and 999999999.00", nil)).Once()
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `balance must be between`,
		},
		{
			name: "нет пользователя",
			body: `{"balance": 1}`,
			setupMock: func(m *MockService) {
				m.On("SetUserBalance", mock.Anything, "u1", money.Amount(100)).Return(apperr.NotFound(apperr.EntityUser)).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPut, "/admin/users/u1/balance", bytes.NewBufferString(tt.body))
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", "u1")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
