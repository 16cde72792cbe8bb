package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := serve(NewHandler("booking-service", nil), "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "booking-service", resp.Service)
}

func TestReady(t *testing.T) {
	ok := CheckerFunc(func(ctx context.Context) error { return nil })
	down := CheckerFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		components map[string]Checker
		wantStatus int
		want       map[string]string
	}{
		{
			name:       "all healthy",
			components: map[string]Checker{"database": ok, "redis": ok},
			wantStatus: http.StatusOK,
			want:       map[string]string{"database": "healthy", "redis": "healthy"},
		},
		{
			name:       "one down",
			components: map[string]Checker{"database": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			want:       map[string]string{"database": "healthy", "redis": "unhealthy: connection refused"},
		},
		{
			name:       "not configured is not fatal",
			components: map[string]Checker{"database": ok, "kafka": nil},
			wantStatus: http.StatusOK,
			want:       map[string]string{"database": "healthy", "kafka": "not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(NewHandler("svc", tt.components), "/ready")
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp ReadyResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Components)
		})
	}
}
