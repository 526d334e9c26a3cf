package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Account state errors.
	ErrAccountBlocked = errors.New("account blocked")

	// Ledger errors.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrIdempotencyConflict is returned when a key is reused for a
	// different request.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different request")
)
