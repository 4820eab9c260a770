package sweep

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
)

type MockService struct {
	mock.Mock
}

func (m *MockService) RunExpirationSweep(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestSweepHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := new(MockService)
	svc.On("RunExpirationSweep", mock.Anything).Return(2, nil).Once()
	w := httptest.NewRecorder()
	New(logger, svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","data":{"processed":2}}`, w.Body.String())

	svc = new(MockService)
	svc.On("RunExpirationSweep", mock.Anything).Return(0, errors.New("query failed")).Once()
	w = httptest.NewRecorder()
	New(logger, svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	svc.AssertExpectations(t)
}
