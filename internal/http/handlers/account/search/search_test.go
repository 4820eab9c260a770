package search

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) SearchUsers(ctx context.Context, term string) ([]*models.User, error) {
	args := m.Called(ctx, term)
	users, _ := args.Get(0).([]*models.User)
	return users, args.Error(1)
}

func TestSearchHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		query      string
		term       string
		users      []*models.User
		err        error
		wantStatus int
		wantCount  int
	}{
		{name: "found", query: "?q=ali", term: "ali",
			users: []*models.User{{ID: "u1", Name: "alice"}}, wantStatus: http.StatusOK, wantCount: 1},
		{name: "short term", query: "?q=al", term: "al",
			err: apperr.Validation("search term must be at least 3 characters", nil), wantStatus: http.StatusUnprocessableEntity},
		{name: "empty result", query: "?q=zzz", term: "zzz", users: []*models.User{}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("SearchUsers", mock.Anything, tt.term).Return(tt.users, tt.err).Once()

			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/users"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.err == nil {
				var resp struct {
					Data []models.User `json:"data"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Len(t, resp.Data, tt.wantCount)
			}
			svc.AssertExpectations(t)
		})
	}
}
