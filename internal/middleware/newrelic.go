package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"

	"ridepay/internal/logger"
)

// TransactionAttributes annotates the nrgin transaction with the route's
// resource id and correlation id and notices errors recorded by handlers. It must run after
// nrgin.Middleware.
func TransactionAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource_id", id)
		}
		if id := logger.CorrelationID(c.Request.Context()); id != "" {
			txn.AddAttribute("correlation_id", id)
		}
		if key := c.GetHeader(idempotencyHeader); key != "" {
			txn.AddAttribute("idempotency_key", key)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
