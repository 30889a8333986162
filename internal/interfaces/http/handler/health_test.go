package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cfdi/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{"database reachable", nil, http.StatusOK, "ok", "ok"},
		{"database unreachable", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, "degraded", "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(stubPinger{err: tt.pingErr}, "1.2.3")
			router := gin.New()
			router.GET("/health", h.Health)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			resp := decodeResponse(t, w)
			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, data["status"])
			assert.Equal(t, tt.wantDB, data["database"])
			assert.Equal(t, "1.2.3", data["version"])
			assert.NotEmpty(t, data["goVersion"])
			if tt.pingErr != nil {
				require.NotNil(t, resp.Error)
				assert.Equal(t, dto.ErrCodeStorageUnavailable, resp.Error.Code)
				assert.NotContains(t, w.Body.String(), "connection refused")
			}
		})
	}
}
