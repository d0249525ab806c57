package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairy/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares. The
// WhatsApp routes are only mounted when webhook is not nil. Admin routes
// require a bearer token when tokens is not nil. The invoice link stays
// public because customers open it from their WhatsApp notice.
func New(billing *handlers.BillingHandler, webhook *handlers.WebhookHandler, tokens TokenVerifier, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/api/customers/:id/invoice", billing.Invoice)

	api := r.Group("/api")
	if tokens != nil {
		api.Use(requireAdmin(tokens, logger))
	}
	{
		api.POST("/customers", billing.RegisterCustomer)
		api.GET("/customers", billing.ListCustomers)

		customer := api.Group("/customers/:id")
		customer.POST("/entries", billing.RecordEntry)
		customer.POST("/entries/:entryID/corrections", billing.CorrectEntry)
		customer.POST("/payments", billing.RecordPayment)
		customer.GET("/summary", billing.Summary)

		api.POST("/notify/manual", billing.ManualNotifications)
		api.POST("/notify/send", billing.SendNotifications)
		api.POST("/export/sheets", billing.ExportSheets)
		api.POST("/archive/invoices", billing.ArchiveInvoices)

		if webhook != nil {
			api.POST("/messages", webhook.MessageCustomer)
		}
	}

	if webhook != nil {
		r.GET("/webhook", webhook.Verify)
		r.POST("/webhook", webhook.Receive)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	logger.Info("router initialized",
		zap.Bool("whatsapp_routes", webhook != nil),
		zap.Bool("admin_auth", tokens != nil))

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		logger.Info("request completed", fields...)
	}
}
