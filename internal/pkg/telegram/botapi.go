package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// GetMeTimeout bounds token validation calls.
const GetMeTimeout = 10 * time.Second

// ErrUnauthorized is returned when Telegram rejects the token.
var ErrUnauthorized = errors.New("telegram: unauthorized")

// APIError is a non-ok Bot API reply.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Identity is the getMe result.
type Identity struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// BotAPI is a direct Bot API client for calls made without a running bot,
// such as validating a token before it is stored.
type BotAPI struct {
	client *resty.Client
}

// NewBotAPI creates a client for token against baseURL (DefaultBaseURL when empty).
func NewBotAPI(baseURL, token string) *BotAPI {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &BotAPI{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/") + "/bot" + token).
			SetTimeout(30 * time.Second),
	}
}

// Call makes a raw API call and decodes result into out.
func (b *BotAPI) Call(ctx context.Context, method string, params map[string]interface{}, out interface{}) error {
	var env envelope
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram API call %s failed: %w", method, err)
	}
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("telegram API call %s: decode: %w", method, err)
	}
	if !env.OK {
		if env.ErrorCode == 401 || env.ErrorCode == 404 {
			return fmt.Errorf("%w: %s", ErrUnauthorized, env.Description)
		}
		return &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	}
	if out != nil && len(env.Result) > 0 {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

// GetMe validates the token and returns the bot identity.
func (b *BotAPI) GetMe(ctx context.Context) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, GetMeTimeout)
	defer cancel()

	var me Identity
	if err := b.Call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
