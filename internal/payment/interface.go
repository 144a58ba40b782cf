package payment

import "context"

// StatusPaid is the provider status of a settled charge or transfer.
const StatusPaid = "paid"

// Charge is a PIX cash-in created at the provider.
type Charge struct {
	ID           string `json:"id"`
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	Status       string `json:"status"`
	Value        int64  `json:"value"`
}

// Transfer is a PIX cash-out.
type Transfer struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ReceiverName string `json:"receiver_name,omitempty"`
	EndToEndID   string `json:"end_to_end_id,omitempty"`
}

// Gateway defines the PIX provider contract. A Gateway is bound to one bearer
// credential; each bot owner supplies their own.
type Gateway interface {
	// Name returns the gateway identifier.
	Name() string

	// CreateCharge creates a PIX charge for amount minor units.
	CreateCharge(ctx context.Context, amountCents int64, webhookURL string) (*Charge, error)

	// PaymentStatus returns the provider status of a charge.
	PaymentStatus(ctx context.Context, paymentID string) (string, error)

	// CreateTransfer pays out amount minor units to a PIX key.
	CreateTransfer(ctx context.Context, amountCents int64, pixKey, keyType, webhookURL string) (*Transfer, error)

	// TransferStatus returns the current state of a cash-out.
	TransferStatus(ctx context.Context, transferID string) (*Transfer, error)
}

// Factory builds a Gateway for a credential.
type Factory func(token string) Gateway
