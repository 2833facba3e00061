package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ridepay/internal/logger"
)

// CorrelationIDHeader carries the id tying together every log line of a request.
const CorrelationIDHeader = "X-Correlation-ID"

const maxCorrelationIDLength = 128

// CorrelationID reuses the caller's X-Correlation-ID or generates one, echoes
// it on the response and stores it in the request context.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" || len(id) > maxCorrelationIDLength {
			id = uuid.New().String()
		}

		c.Header(CorrelationIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}
