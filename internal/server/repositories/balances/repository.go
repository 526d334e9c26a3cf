// Package balances declares the repository contract for per-asset account
// balances and the record of applied balance deltas.
package balances

import (
	"context"

	"github.com/afriswift/settlement/internal/server/models"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// RecordApplication claims (account, asset, key). It returns false when
	// the key was already claimed.
	RecordApplication(ctx context.Context, accountID, asset, key string, delta decimal.Decimal) (bool, error)

	// Ensure creates a zero balance row if none exists.
	Ensure(ctx context.Context, accountID, asset string) error

	// Adjust adds delta to the balance and returns the new amount. It fails
	// with common.ErrInsufficientBalance instead of going below zero.
	Adjust(ctx context.Context, accountID, asset string, delta decimal.Decimal) (decimal.Decimal, error)

	// Get returns the balance, zero when no row exists.
	Get(ctx context.Context, accountID, asset string) (decimal.Decimal, error)

	List(ctx context.Context, accountID string) ([]*models.Balance, error)
}
