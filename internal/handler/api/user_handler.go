package api

import (
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"zenyx/internal/models"
)

// UserHandler handles all user API actions.
type UserHandler struct {
	deps   Deps
	logger *zap.Logger
}

func NewUserHandler(deps Deps, logger *zap.Logger) *UserHandler {
	return &UserHandler{deps: deps, logger: logger}
}

// Handle routes user API requests.
// POST /api/users
func (h *UserHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "users":
		return h.listUsers(c, body)
	case "user":
		return h.getUser(c, body)
	case "withdrawal_refresh":
		return h.refreshWithdrawal(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func userSummary(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":            u.ID,
		"username":      u.Username,
		"first_name":    u.FirstName,
		"bots":          len(u.Bots),
		"balance":       u.Balance.StringFixed(2),
		"total_sales":   u.TotalSales,
		"total_revenue": u.TotalRevenue.StringFixed(2),
		"referrals":     len(u.Referrals),
		"is_admin_vip":  u.IsAdminVIP,
		"created_at":    u.CreatedAt,
	}
}

func matches(u *models.User, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(strings.TrimPrefix(q, "@"))
	return strings.Contains(strings.ToLower(u.Username), q) ||
		strings.Contains(strings.ToLower(u.FirstName), q) ||
		strconv.FormatInt(u.ID, 10) == q
}

func (h *UserHandler) listUsers(c echo.Context, body map[string]interface{}) error {
	users, err := h.deps.Users.FindAll(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		return errorResponse(c, "Failed to retrieve users")
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })

	q := getStringField(body, "q")
	items := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		if matches(&users[i], q) {
			items = append(items, userSummary(&users[i]))
		}
	}
	limit, page, from, to := pageBounds(body, len(items))
	return successResponse(c, "Successful", paginatedResponse(items[from:to], int64(len(items)), page, limit))
}

func (h *UserHandler) getUser(c echo.Context, body map[string]interface{}) error {
	id, ok := getInt64Field(body, "chat_id")
	if !ok {
		return errorResponse(c, "chat_id is required")
	}
	u, err := h.deps.Users.FindByID(c.Request().Context(), id)
	if err != nil {
		return failure(c, err)
	}
	view := userSummary(u)
	view["pix_key_type"] = u.PixKeyType
	view["withdrawals"] = u.Withdrawals
	view["sales"] = u.Sales
	view["referred_by"] = u.ReferredBy
	return successResponse(c, "Successful", view)
}

func (h *UserHandler) refreshWithdrawal(c echo.Context, body map[string]interface{}) error {
	id, ok := getInt64Field(body, "chat_id")
	withdrawalID := getStringField(body, "withdrawal_id")
	if !ok || withdrawalID == "" {
		return errorResponse(c, "chat_id and withdrawal_id are required")
	}
	w, err := h.deps.Wallet.RefreshWithdrawal(c.Request().Context(), id, withdrawalID)
	if err != nil {
		return failure(c, err)
	}
	return successResponse(c, "Successful", w)
}
