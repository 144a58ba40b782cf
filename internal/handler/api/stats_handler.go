package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// StatsHandler serves the platform snapshot.
type StatsHandler struct {
	deps   Deps
	logger *zap.Logger
}

func NewStatsHandler(deps Deps, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{deps: deps, logger: logger}
}

// Handle returns the admin metrics.
// GET /api/stats
func (h *StatsHandler) Handle(c echo.Context) error {
	s, err := h.deps.Stats(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to collect stats", zap.Error(err))
		return errorResponse(c, "Failed to collect stats")
	}
	return successResponse(c, "Successful", map[string]interface{}{
		"users":         s.Users,
		"paying_users":  s.PayingUsers,
		"bots":          s.Bots,
		"active_bots":   s.ActiveBots,
		"running_bots":  s.RunningBots,
		"sales":         s.Sales,
		"revenue":       s.Revenue.StringFixed(2),
		"commission":    s.Commission.StringFixed(2),
		"pending_count": s.PendingCount,
	})
}
