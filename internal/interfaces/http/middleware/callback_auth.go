package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/cfdi/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallbackSecretHeader carries the secret shared with the tax authority relay
const CallbackSecretHeader = "X-Callback-Secret"

// CallbackSecret authenticates the cancellation callback, which arrives
// without a bearer token. An empty secret rejects every request.
func CallbackSecret(secret string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	expected := []byte(secret)

	return func(c *gin.Context) {
		got := []byte(c.GetHeader(CallbackSecretHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			log.Warn("Rejected cancellation callback",
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.String("client_ip", c.ClientIP()),
				zap.Bool("secret_present", len(got) > 0),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized,
				"Invalid callback credentials",
				c.GetString(RequestIDKey),
			))
			return
		}
		c.Next()
	}
}
