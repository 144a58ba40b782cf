package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"zenyx/internal/bot"
	"zenyx/internal/checkout"
	"zenyx/internal/models"
	"zenyx/internal/registry"
	"zenyx/internal/repository"
	"zenyx/internal/wallet"
)

// Fleet is the part of the bot registry exposed to admins.
type Fleet interface {
	Handles() []registry.Handle
	Restart(ctx context.Context, token string) (*registry.Handle, error)
	Stop(token string) bool
	Deactivate(ctx context.Context, token string) error
}

// Confirmer checks a payment against its gateway.
type Confirmer interface {
	CheckByID(ctx context.Context, paymentID string) (checkout.Outcome, error)
}

// Deps bundles what the API handlers need.
type Deps struct {
	Users    *repository.UserRepository
	Bots     *repository.BotRepository
	Payments *repository.PaymentRepository
	Fleet    Fleet
	Checkout Confirmer
	Wallet   *wallet.Service
	Stats    func(ctx context.Context) (*bot.Stats, error)
}

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}

// failure maps a domain error to a response message.
func failure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return errorResponse(c, "Not found")
	case errors.Is(err, models.ErrInvalidInput):
		return errorResponse(c, "Invalid input: "+err.Error())
	case errors.Is(err, models.ErrTransportUnavailable):
		return errorResponse(c, "Upstream unavailable, try again")
	}
	return errorResponse(c, "Internal error")
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		limit = 50
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// pageBounds normalizes limit/page from the body and returns the slice bounds
// for a list of n items.
func pageBounds(body map[string]interface{}, n int) (limit, page, from, to int) {
	limit = getIntField(body, "limit", 50)
	page = getIntField(body, "page", 1)
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if page <= 0 {
		page = 1
	}
	from = (page - 1) * limit
	if from > n {
		from = n
	}
	to = from + limit
	if to > n {
		to = n
	}
	return limit, page, from, to
}

func paginatedResponse(data interface{}, total int64, page, limit int) models.PaginatedResponse {
	return models.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}
}

// parseBodyAction extracts the "actions" field from the request body.
func parseBodyAction(c echo.Context) (string, map[string]interface{}, error) {
	body := make(map[string]interface{})
	if err := c.Bind(&body); err != nil {
		return "", nil, err
	}
	action, _ := body["actions"].(string)
	c.Set("api_actions", action)
	return action, body, nil
}

// getStringField gets a string field from the body map.
func getStringField(body map[string]interface{}, key string) string {
	if v, ok := body[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		// Handle numbers that should be strings
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.0f", f)
		}
	}
	return ""
}

// getIntField gets an int field from the body map.
func getIntField(body map[string]interface{}, key string, defaultVal int) int {
	if v, ok := body[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case string:
			if i, err := strconv.Atoi(t); err == nil {
				return i
			}
		}
	}
	return defaultVal
}

// getInt64Field reads Telegram-sized ids, which do not fit an int on 32-bit.
func getInt64Field(body map[string]interface{}, key string) (int64, bool) {
	v, ok := body[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		id, err := strconv.ParseInt(t, 10, 64)
		return id, err == nil
	}
	return 0, false
}
