package purchase

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/subscribely/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Purchase(ctx context.Context, userID, catalogItemID string) (models.PurchaseResult, error) {
	args := m.Called(ctx, userID, catalogItemID)
	return args.Get(0).(models.PurchaseResult), args.Error(1)
}

const itemID = "5b7e1c7a-7a3e-4b0e-9a53-5c1b1d1e2f30"

func TestPurchaseHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	actor := models.Actor{UserID: "u1", Role: models.RoleUser}

	tests := []struct {
		name           string
		body           string
		noActor        bool
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешная покупка",
			body: `{"catalog_item_id":"` + itemID + `"}`,
			setupMock: func(m *MockService) {
				m.On("Purchase", mock.Anything, "u1", itemID).
					Return(models.PurchaseResult{NewBalance: 8001, SubscriptionID: "s1"}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"new_balance":80.01`,
		},
		{
			name: "недостаточно средств",
			body: `{"catalog_item_id":"` + itemID + `"}`,
			setupMock: func(m *MockService) {
				m.On("Purchase", mock.Anything, "u1", itemID).
					Return(models.PurchaseResult{}, apperr.Conflict(apperr.ReasonInsufficientFunds, apperr.EntityUser)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"reason":"insufficientFunds"`,
		},
		{
			name: "лимит подписок",
			body: `{"catalog_item_id":"` + itemID + `"}`,
			setupMock: func(m *MockService) {
				m.On("Purchase", mock.Anything, "u1", itemID).
					Return(models.PurchaseResult{}, apperr.Conflict(apperr.ReasonSubscriptionLimitReached, apperr.EntityUser)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"reason":"subscriptionLimitReached"`,
		},
		{
			name: "позиции нет",
			body: `{"catalog_item_id":"` + itemID + `"}`,
			setupMock: func(m *MockService) {
				m.On("Purchase", mock.Anything, "u1", itemID).
					Return(models.PurchaseResult{}, apperr.NotFound(apperr.EntityCatalogItem)).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "таймаут",
			body: `{"catalog_item_id":"` + itemID + `"}`,
			setupMock: func(m *MockService) {
				m.On("Purchase", mock.Anything, "u1", itemID).
					Return(models.PurchaseResult{}, apperr.Classify("op", context.DeadlineExceeded)).Once()
			},
			expectedStatus: http.StatusGatewayTimeout,
		},
		{
			name:           "не uuid",
			body:           `{"catalog_item_id":"42"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `can contain only uuid`,
		},
		{
			name:           "битый JSON",
			body:           `{`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "без токена",
			body:           `{"catalog_item_id":"` + itemID + `"}`,
			noActor:        true,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/subscriptions/purchase", bytes.NewBufferString(tt.body))
			if !tt.noActor {
				req = req.WithContext(middlewarectx.WithActor(req.Context(), actor))
			}
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
