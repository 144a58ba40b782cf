package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"zenyx/internal/handler"
	"zenyx/internal/handler/api"
	"zenyx/internal/middleware"
)

// Options carries what Setup mounts.
type Options struct {
	APIKey  string
	Deduper middleware.Deduper
	// Webhook is the root bot's update handler; nil in long-polling mode.
	Webhook   http.Handler
	PushinPay *handler.PushinPayHandler
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, deps api.Deps, opts Options, logger *zap.Logger) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.CORS())

	botHandler := api.NewBotHandler(deps, logger)
	paymentHandler := api.NewPaymentHandler(deps, logger)
	userHandler := api.NewUserHandler(deps, logger)
	statsHandler := api.NewStatsHandler(deps, logger)

	// Admin API
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.APIAuth(opts.APIKey))
	apiGroup.POST("/bots", botHandler.Handle)
	apiGroup.POST("/payments", paymentHandler.Handle)
	apiGroup.POST("/users", userHandler.Handle)
	apiGroup.GET("/stats", statsHandler.Handle)

	// Telegram webhook (protected by IP check + deduplication)
	if opts.Webhook != nil {
		botWebhookGroup := e.Group("/bot")
		botWebhookGroup.Use(middleware.TelegramIPCheck())
		botWebhookGroup.Use(middleware.TelegramUpdateDedup(opts.Deduper))
		botWebhookGroup.POST("/webhook", echo.WrapHandler(opts.Webhook))
	} else {
		logger.Info("Telegram webhook routes disabled (bot update mode is polling)")
	}

	// Gateway notifications
	if opts.PushinPay != nil {
		hooks := e.Group("/webhooks")
		hooks.Use(middleware.PushinPayDedup(opts.Deduper))
		hooks.POST("/pushinpay/:botID", opts.PushinPay.Callback)
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
