// Package network talks to the on-chain settlement network through a
// Horizon-style HTTP gateway: account lookups, signed transfer submission,
// outcome queries by memo, trustlines and testnet funding.
package network

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotReady means the account does not exist on the network
	// yet, i.e. it was never funded with the native reserve.
	ErrAccountNotReady = errors.New("account must be activated with minimum XLM")

	// ErrOutcomeUnknown means a submission may or may not have been applied.
	// The caller must query the outcome before doing anything else.
	ErrOutcomeUnknown = errors.New("transfer outcome unknown")

	// ErrLookupIncomplete means a transfer search stopped before covering
	// the whole period asked for, so its absence proves nothing.
	ErrLookupIncomplete = errors.New("transfer history lookup incomplete")
)

// FailureReason classifies a definite rejection.
type FailureReason string

const (
	ReasonInsufficientFunds FailureReason = "insufficient_funds"
	ReasonSequenceConflict  FailureReason = "sequence_conflict"
	ReasonNoTrust           FailureReason = "no_trust"
	ReasonNoDestination     FailureReason = "no_destination"
	ReasonMalformed         FailureReason = "malformed"
	ReasonExpired           FailureReason = "expired"
	ReasonRejected          FailureReason = "rejected"
)

// Failure is a definite rejection: nothing was applied on the network.
type Failure struct {
	Reason FailureReason
	Codes  []string
}

func (f *Failure) Error() string {
	if len(f.Codes) == 0 {
		return "transfer rejected: " + string(f.Reason)
	}
	return fmt.Sprintf("transfer rejected: %s (%s)", f.Reason, strings.Join(f.Codes, ","))
}

// Asset identifies a network asset. An empty Issuer means the native asset.
type Asset struct {
	Code   string
	Issuer string
}

func (a Asset) Native() bool { return a.Issuer == "" }

func (a Asset) String() string {
	if a.Native() {
		return "native"
	}
	return a.Code + ":" + a.Issuer
}

// OnChainAccount is a snapshot of a network account.
type OnChainAccount struct {
	ID       string
	Sequence int64
	Balances map[string]decimal.Decimal
}

// BalanceOf returns the account's balance of asset, zero when it holds no
// line for it.
func (a *OnChainAccount) BalanceOf(asset Asset) decimal.Decimal {
	if b, ok := a.Balances[asset.String()]; ok {
		return b
	}
	return decimal.Zero
}

// HasLine reports whether the account trusts asset.
func (a *OnChainAccount) HasLine(asset Asset) bool {
	_, ok := a.Balances[asset.String()]
	return ok
}

// Transfer is a single payment. Memo is the idempotency handle used to find
// the payment again; ValidUntil bounds when the network may still apply it.
type Transfer struct {
	Source      *KeyPair
	Destination string
	Asset       Asset
	Amount      decimal.Decimal
	Memo        string
	ValidUntil  time.Time
}

// Client is the settlement network surface the orchestrator depends on.
type Client interface {
	LoadAccount(ctx context.Context, publicID string) (*OnChainAccount, error)
	// SubmitTransfer returns the network reference on success, a *Failure
	// on definite rejection and ErrOutcomeUnknown otherwise.
	SubmitTransfer(ctx context.Context, t Transfer) (string, error)
	// FindTransfer looks up a successful transfer from source by memo among
	// the transactions created since the given time. When the history could
	// not be searched back that far it returns ErrLookupIncomplete.
	FindTransfer(ctx context.Context, source, memo string, since time.Time) (string, bool, error)
	EstablishTrustline(ctx context.Context, signer *KeyPair, asset Asset) error
	Fund(ctx context.Context, publicID string) error
}

// MemoFor derives the 28-character text memo carried by the transfer of
// the intent with the given idempotency key.
func MemoFor(idempotencyKey string) string {
	sum := sha256.Sum256([]byte(idempotencyKey))
	return hex.EncodeToString(sum[:14])
}
