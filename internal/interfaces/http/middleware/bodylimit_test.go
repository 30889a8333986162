package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cfdi/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// invoicePayload is an issuance request carrying its CFDI body.
func invoicePayload(xmlSize int) string {
	return `{"uuid":"6F9619FF-8B86-D011-B42D-00C04FC964FF","total":"116.00","xml":"` +
		strings.Repeat("a", xmlSize) + `"}`
}

// newIssuanceRouter mounts an invoice endpoint that reads the whole body.
func newIssuanceRouter(limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit))
	router.POST("/api/v1/fiscal/invoices", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusBadRequest, "truncated")
			return
		}
		c.String(http.StatusCreated, "%d", len(body))
	})
	router.GET("/api/v1/fiscal/invoice/:uuid", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestBodyLimit(t *testing.T) {
	t.Run("issuance within the limit reaches the handler", func(t *testing.T) {
		payload := invoicePayload(200)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fiscal/invoices", strings.NewReader(payload))
		w := httptest.NewRecorder()
		newIssuanceRouter(1024).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, len(payload), mustAtoi(t, w.Body.String()))
	})

	t.Run("declared oversize body is refused before the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fiscal/invoices", strings.NewReader(invoicePayload(4096)))
		req.Header.Set(RequestIDHeader, "req-413")
		w := httptest.NewRecorder()
		newIssuanceRouter(1024).ServeHTTP(w, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodePayloadTooLarge, resp.Error.Code)
		assert.Equal(t, "req-413", resp.Error.RequestID)
	})

	t.Run("streamed body is cut at the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fiscal/invoices", strings.NewReader(invoicePayload(4096)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		newIssuanceRouter(1024).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "truncated", w.Body.String())
	})

	t.Run("document lookups carry no body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/fiscal/invoice/6F9619FF-8B86-D011-B42D-00C04FC964FF", nil)
		w := httptest.NewRecorder()
		newIssuanceRouter(16).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	var n int
	require.NoError(t, json.Unmarshal([]byte(s), &n))
	return n
}
