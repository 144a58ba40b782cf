package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"zenyx/internal/checkout"
	"zenyx/internal/middleware"
	"zenyx/internal/models"
	"zenyx/internal/payment"
	"zenyx/internal/repository"
)

// Confirmer confirms a payment by gateway id.
type Confirmer interface {
	CheckByID(ctx context.Context, paymentID string) (checkout.Outcome, error)
}

// PushinPayHandler receives PushinPay charge notifications.
type PushinPayHandler struct {
	checkout Confirmer
	bots     *repository.BotRepository
	payments *repository.PaymentRepository
	logger   *zap.Logger
}

func NewPushinPayHandler(co Confirmer, bots *repository.BotRepository, payments *repository.PaymentRepository, logger *zap.Logger) *PushinPayHandler {
	return &PushinPayHandler{
		checkout: co,
		bots:     bots,
		payments: payments,
		logger:   logger.Named("pushinpay_webhook"),
	}
}

// Callback handles POST /webhooks/pushinpay/:botID.
// The notice is only a hint; the payment is always re-checked with the gateway.
func (h *PushinPayHandler) Callback(c echo.Context) error {
	botID, err := strconv.ParseInt(c.Param("botID"), 10, 64)
	if err != nil {
		return c.NoContent(http.StatusNotFound)
	}

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	notice, ok := middleware.ParsePushinPayNotice(raw)
	if !ok {
		return c.NoContent(http.StatusBadRequest)
	}
	log := h.logger.With(zap.Int64("bot_id", botID), zap.String("payment_id", notice.ID), zap.String("status", notice.Status))

	if notice.Status != payment.StatusPaid {
		log.Debug("Ignoring non-paid notice")
		return c.NoContent(http.StatusOK)
	}

	ctx := c.Request().Context()
	p, err := h.payments.FindByID(ctx, notice.ID)
	if errors.Is(err, models.ErrNotFound) {
		log.Warn("Notice for unknown payment")
		return c.NoContent(http.StatusOK)
	}
	if err != nil {
		log.Error("Payment lookup failed", zap.Error(err))
		return c.NoContent(http.StatusInternalServerError)
	}
	cfg, err := h.bots.FindByBotID(ctx, botID)
	if err != nil || cfg.Token != p.BotToken {
		log.Warn("Notice bot does not match payment")
		return c.NoContent(http.StatusOK)
	}

	outcome, err := h.checkout.CheckByID(ctx, notice.ID)
	if err != nil {
		log.Warn("Confirmation failed", zap.Error(err))
		if errors.Is(err, models.ErrTransportUnavailable) {
			// Let PushinPay retry later.
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	}
	log.Info("Notice processed", zap.String("outcome", outcome.String()))
	return c.NoContent(http.StatusOK)
}
