package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"ridepay/internal/handler"
	"ridepay/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler          *handler.RideHandler
	PaymentSourceHandler *handler.PaymentSourceHandler
	DriverHandler        *handler.DriverHandler
	IdempotencyStore     middleware.ResponseStore
	NewRelicApp          *newrelic.Application
	Logger               *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(deps.Logger))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.TransactionAttributes())
	}

	if deps.IdempotencyStore != nil {
		router.Use(middleware.IdempotencyMiddleware(deps.IdempotencyStore, deps.Logger))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.PATCH("/:id/finish", deps.RideHandler.FinishRide)
		}

		riders := v1.Group("/riders")
		{
			riders.POST("/:id/payment-sources", deps.PaymentSourceHandler.CreatePaymentSource)
		}

		drivers := v1.Group("/drivers")
		{
			drivers.POST("/:id/location", deps.DriverHandler.UpdateLocation)
			drivers.DELETE("/:id/location", deps.DriverHandler.RetireLocation)
		}
	}

	return router
}
