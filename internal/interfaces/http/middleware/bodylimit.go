package middleware

import (
	"net/http"

	"github.com/cfdi/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit refuses issuance payloads above maxBytes. A declared length is
// checked up front; streamed bodies fail on read once the limit is passed.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodePayloadTooLarge,
				"Request body exceeds maximum allowed size",
				c.GetString(RequestIDKey),
			))
			return
		}

		// Bodies without a declared length are cut off while streaming
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
