// Package anchor is the client for the fiat anchor: challenge/response
// authentication plus deposit and withdrawal instructions.
package anchor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnauthorized is returned when the anchor refuses the bearer token.
	ErrUnauthorized = errors.New("anchor: unauthorized")

	// ErrOutcomeUnknown means the anchor may or may not have recorded the
	// instruction.
	ErrOutcomeUnknown = errors.New("anchor: outcome unknown")

	ErrNotFound = errors.New("anchor: transaction not found")

	// ErrNoToken wraps a failure to obtain a bearer token. No anchor call
	// was made.
	ErrNoToken = errors.New("anchor: no valid token")
)

// Rejection is a definite refusal of an instruction by the anchor.
type Rejection struct {
	Status  int
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("anchor rejected request (%d): %s", r.Status, r.Message)
}

type DepositDetails struct {
	Amount     decimal.Decimal
	Type       string
	Memo       string
	ExternalID string
}

type DepositAck struct {
	ID   string
	How  string
	ETA  int64
	Memo string
}

// WithdrawDetails describes the bank destination of a payout.
type WithdrawDetails struct {
	Amount     decimal.Decimal
	Type       string
	Dest       string
	DestExtra  string
	ExternalID string
}

// WithdrawAck tells where the on-chain leg of a withdrawal must be sent.
type WithdrawAck struct {
	ID        string
	AccountID string
	Memo      string
	MemoType  string
}

// Transaction is the anchor's view of a deposit or withdrawal.
type Transaction struct {
	ID         string
	Kind       string
	Status     string
	ExternalID string
	AmountIn   decimal.Decimal
	AmountOut  decimal.Decimal
}

// Failed reports whether the anchor gave up on the transaction.
func (t *Transaction) Failed() bool {
	switch t.Status {
	case "error", "expired", "refunded", "no_market":
		return true
	}
	return false
}

// Client is the anchor surface used by the orchestrator and the credential
// cache.
type Client interface {
	Authenticate(ctx context.Context) (string, error)
	InitiateDeposit(ctx context.Context, token, publicID, asset string, d DepositDetails) (*DepositAck, error)
	InitiateWithdrawal(ctx context.Context, token, publicID, asset string, d WithdrawDetails) (*WithdrawAck, error)
	FindTransaction(ctx context.Context, token, externalID string) (*Transaction, error)
}

// TokenSource hands out bearer tokens and accepts reports of rejected ones.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(token string)
}

// Authorized runs call with a token from tokens. If the anchor refuses the
// token, it is invalidated and call is retried exactly once with a fresh
// one.
func Authorized[T any](ctx context.Context, tokens TokenSource, call func(ctx context.Context, token string) (T, error)) (T, error) {
	var zero T

	token, err := tokens.Token(ctx)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrNoToken, err)
	}
	res, err := call(ctx, token)
	if !errors.Is(err, ErrUnauthorized) {
		return res, err
	}

	tokens.Invalidate(token)
	token, err = tokens.Token(ctx)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrNoToken, err)
	}
	return call(ctx, token)
}
