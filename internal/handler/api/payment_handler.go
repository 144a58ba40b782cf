package api

import (
	"sort"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"zenyx/internal/models"
)

// PaymentHandler handles all payment API actions.
type PaymentHandler struct {
	deps   Deps
	logger *zap.Logger
}

func NewPaymentHandler(deps Deps, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{deps: deps, logger: logger}
}

// Handle routes payment API requests.
// POST /api/payments
func (h *PaymentHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "payments":
		return h.listPending(c, body)
	case "payment":
		return h.getPayment(c, body)
	case "payment_check":
		return h.checkPayment(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func paymentView(p *models.Payment) map[string]interface{} {
	return map[string]interface{}{
		"id":         p.ID,
		"buyer_id":   p.BuyerID,
		"plan_id":    p.PlanID,
		"plan_name":  p.PlanName,
		"price":      p.Price.StringFixed(2),
		"status":     p.Status,
		"created_at": p.CreatedAt,
		"paid_at":    p.PaidAt,
	}
}

func (h *PaymentHandler) listPending(c echo.Context, body map[string]interface{}) error {
	pending, err := h.deps.Payments.FindPending(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list payments", zap.Error(err))
		return errorResponse(c, "Failed to retrieve payments")
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.After(pending[j].CreatedAt) })

	items := make([]map[string]interface{}, 0, len(pending))
	for i := range pending {
		items = append(items, paymentView(&pending[i]))
	}
	limit, page, from, to := pageBounds(body, len(items))
	return successResponse(c, "Successful", paginatedResponse(items[from:to], int64(len(items)), page, limit))
}

func (h *PaymentHandler) getPayment(c echo.Context, body map[string]interface{}) error {
	id := getStringField(body, "id")
	if id == "" {
		return errorResponse(c, "id is required")
	}
	p, err := h.deps.Payments.FindByID(c.Request().Context(), id)
	if err != nil {
		return failure(c, err)
	}
	return successResponse(c, "Successful", paymentView(p))
}

func (h *PaymentHandler) checkPayment(c echo.Context, body map[string]interface{}) error {
	id := getStringField(body, "id")
	if id == "" {
		return errorResponse(c, "id is required")
	}
	outcome, err := h.deps.Checkout.CheckByID(c.Request().Context(), id)
	if err != nil {
		h.logger.Warn("Manual payment check failed", zap.String("payment_id", id), zap.Error(err))
		return failure(c, err)
	}
	return successResponse(c, "Successful", map[string]interface{}{
		"id":      id,
		"outcome": outcome.String(),
	})
}
