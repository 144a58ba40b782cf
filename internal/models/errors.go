package models

import "errors"

// Error taxonomy shared by every component. Callers match with errors.Is and
// translate to a user-facing message at the handler boundary.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrDuplicateToken       = errors.New("token already in use")
	ErrExpired              = errors.New("expired")
	ErrAlreadyExists        = errors.New("already exists")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWithdrawalTooSoon   = errors.New("withdrawal interval not elapsed")
	ErrLimitReached        = errors.New("limit reached")
)
