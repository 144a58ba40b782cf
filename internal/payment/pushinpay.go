package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zenyx/internal/models"
	"zenyx/internal/pkg/httpclient"
)

// DefaultPushinPayURL is the production API.
const DefaultPushinPayURL = "https://api.pushinpay.com.br"

// Timeout bounds every provider call.
const Timeout = 30 * time.Second

// PushinPayGateway implements Gateway for PushinPay.
type PushinPayGateway struct {
	client *httpclient.Client
}

func NewPushinPayGateway(baseURL, token string) *PushinPayGateway {
	if baseURL == "" {
		baseURL = DefaultPushinPayURL
	}
	return &PushinPayGateway{
		client: httpclient.New().
			WithBaseURL(baseURL).
			WithTimeout(Timeout).
			WithBearerToken(token),
	}
}

// PushinPayFactory returns a Factory bound to baseURL.
func PushinPayFactory(baseURL string) Factory {
	return func(token string) Gateway {
		return NewPushinPayGateway(baseURL, token)
	}
}

func (p *PushinPayGateway) Name() string {
	return "pushinpay"
}

func (p *PushinPayGateway) CreateCharge(ctx context.Context, amountCents int64, webhookURL string) (*Charge, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrInvalidInput)
	}
	body := map[string]interface{}{"value": amountCents}
	if webhookURL != "" {
		body["webhook_url"] = webhookURL
	}

	var charge Charge
	if err := p.client.Post(ctx, "/api/pix/cashIn", body, &charge); err != nil {
		return nil, classify("pushinpay create charge", err)
	}
	if charge.ID == "" {
		return nil, fmt.Errorf("pushinpay create charge: %w: empty payment id", models.ErrTransportUnavailable)
	}
	return &charge, nil
}

func (p *PushinPayGateway) PaymentStatus(ctx context.Context, paymentID string) (string, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := p.client.Get(ctx, "/api/transactions/"+paymentID, &out); err != nil {
		return "", classify("pushinpay payment status", err)
	}
	return out.Status, nil
}

func (p *PushinPayGateway) CreateTransfer(ctx context.Context, amountCents int64, pixKey, keyType, webhookURL string) (*Transfer, error) {
	if amountCents <= 0 || pixKey == "" {
		return nil, fmt.Errorf("%w: amount and pix key are required", models.ErrInvalidInput)
	}
	body := map[string]interface{}{
		"value":        amountCents,
		"pix_key":      pixKey,
		"pix_key_type": keyType,
	}
	if webhookURL != "" {
		body["webhook_url"] = webhookURL
	}

	var t Transfer
	if err := p.client.Post(ctx, "/api/pix/cashOut", body, &t); err != nil {
		return nil, classify("pushinpay create transfer", err)
	}
	return &t, nil
}

func (p *PushinPayGateway) TransferStatus(ctx context.Context, transferID string) (*Transfer, error) {
	var t Transfer
	if err := p.client.Get(ctx, "/api/transfers/"+transferID, &t); err != nil {
		return nil, classify("pushinpay transfer status", err)
	}
	return &t, nil
}

// classify maps HTTP failures onto the shared error taxonomy.
func classify(op string, err error) error {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, models.ErrUnauthorized, err)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %v", op, models.ErrNotFound, err)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("%s: %w: %v", op, models.ErrInvalidInput, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrTransportUnavailable, err)
}
