package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whoami847/topup-payments/internal/handlers"
	"github.com/whoami847/topup-payments/internal/telemetry"
)

func NewRouter(payment *handlers.PaymentHandler, order *handlers.OrderHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "topup-payments"})
	})

	// Payment routes
	r.POST("/payment/initiate", payment.Initiate)
	r.POST("/payment/ipn", payment.HandleIPN)

	// Providers differ on the redirect method; accept both.
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		r.Handle(method, "/payment/success/:tran_id", payment.Success)
		r.Handle(method, "/payment/fail/:tran_id", payment.Fail)
		r.Handle(method, "/payment/cancel/:tran_id", payment.Cancel)
	}

	// Read side
	r.GET("/orders/:id", order.GetOrder)
	r.GET("/users/:id/wallet", order.GetWallet)

	return r
}
