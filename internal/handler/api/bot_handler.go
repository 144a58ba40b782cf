package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/pkg/utils"
)

// BotHandler handles the child bot API actions.
type BotHandler struct {
	deps   Deps
	logger *zap.Logger
}

func NewBotHandler(deps Deps, logger *zap.Logger) *BotHandler {
	return &BotHandler{deps: deps, logger: logger}
}

// Handle routes bot API requests.
// POST /api/bots
func (h *BotHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "bots":
		return h.listBots(c, body)
	case "bot":
		return h.getBot(c, body)
	case "bot_restart":
		return h.restartBot(c, body)
	case "bot_stop":
		return h.stopBot(c, body)
	case "bot_deactivate":
		return h.deactivateBot(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *BotHandler) running() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, handle := range h.deps.Fleet.Handles() {
		out[handle.Token] = handle.StartedAt
	}
	return out
}

func botView(cfg *models.BotConfig, running map[string]time.Time) map[string]interface{} {
	view := map[string]interface{}{
		"bot_id":        cfg.BotID,
		"username":      cfg.Username,
		"owner_id":      cfg.OwnerID,
		"token":         utils.MaskToken(cfg.Token),
		"active":        cfg.Active,
		"ready":         cfg.Ready(),
		"plans":         len(cfg.Plans),
		"linked_groups": len(cfg.LinkedGroups),
		"created_at":    cfg.CreatedAt,
		"running":       false,
	}
	if started, ok := running[cfg.Token]; ok {
		view["running"] = true
		view["started_at"] = started
	}
	return view
}

func (h *BotHandler) listBots(c echo.Context, body map[string]interface{}) error {
	bots, err := h.deps.Bots.FindAll(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list bots", zap.Error(err))
		return errorResponse(c, "Failed to retrieve bots")
	}
	onlyRunning := getStringField(body, "running") == "1"
	running := h.running()

	items := make([]map[string]interface{}, 0, len(bots))
	for i := range bots {
		if _, ok := running[bots[i].Token]; onlyRunning && !ok {
			continue
		}
		items = append(items, botView(&bots[i], running))
	}
	limit, page, from, to := pageBounds(body, len(items))
	return successResponse(c, "Successful", paginatedResponse(items[from:to], int64(len(items)), page, limit))
}

func (h *BotHandler) resolve(c echo.Context, body map[string]interface{}) (*models.BotConfig, error) {
	id, ok := getInt64Field(body, "bot_id")
	if !ok {
		return nil, models.ErrInvalidInput
	}
	return h.deps.Bots.FindByBotID(c.Request().Context(), id)
}

func (h *BotHandler) getBot(c echo.Context, body map[string]interface{}) error {
	cfg, err := h.resolve(c, body)
	if err != nil {
		return failure(c, err)
	}
	return successResponse(c, "Successful", botView(cfg, h.running()))
}

func (h *BotHandler) restartBot(c echo.Context, body map[string]interface{}) error {
	cfg, err := h.resolve(c, body)
	if err != nil {
		return failure(c, err)
	}
	handle, err := h.deps.Fleet.Restart(c.Request().Context(), cfg.Token)
	if err != nil {
		h.logger.Warn("Admin restart failed", zap.Int64("bot_id", cfg.BotID), zap.Error(err))
		return failure(c, err)
	}
	h.logger.Info("Bot restarted via API", zap.Int64("bot_id", cfg.BotID))
	return successResponse(c, "Bot restarted", map[string]interface{}{
		"bot_id":     handle.BotID,
		"username":   handle.Username,
		"started_at": handle.StartedAt,
	})
}

func (h *BotHandler) stopBot(c echo.Context, body map[string]interface{}) error {
	cfg, err := h.resolve(c, body)
	if err != nil {
		return failure(c, err)
	}
	if !h.deps.Fleet.Stop(cfg.Token) {
		return errorResponse(c, "Bot is not running")
	}
	h.logger.Info("Bot stopped via API", zap.Int64("bot_id", cfg.BotID))
	return successResponse(c, "Bot stopped", nil)
}

func (h *BotHandler) deactivateBot(c echo.Context, body map[string]interface{}) error {
	cfg, err := h.resolve(c, body)
	if err != nil {
		return failure(c, err)
	}
	if err := h.deps.Fleet.Deactivate(c.Request().Context(), cfg.Token); err != nil {
		return failure(c, err)
	}
	h.logger.Info("Bot deactivated via API", zap.Int64("bot_id", cfg.BotID))
	return successResponse(c, "Bot deactivated", nil)
}
