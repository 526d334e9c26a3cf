// Package ledger is the internal side of settlement: accounts, per-asset
// balances and the exactly-once application of balance deltas.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/afriswift/settlement/internal/dbx"
	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

// maxTxAttempts bounds reruns of a balance transaction that lost a
// serialization or deadlock race.
const maxTxAttempts = 3

// Store reads accounts and applies balance deltas. Every write locks at most
// one account-asset row, so two accounts are never locked together.
type Store struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewStore(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *Store {
	return &Store{db: db, repomanager: m, logger: logger.With("module", "ledger")}
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return s.repomanager.Accounts(s.db).GetByID(ctx, id)
}

// GetAccountByNumber resolves the public account number used as a p2p address.
func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return s.repomanager.Accounts(s.db).GetByNumber(ctx, number)
}

// ApplyBalanceDelta adds delta to the account's balance of asset exactly
// once per key. A repeated key leaves the balance untouched and returns it.
// A delta that would take the balance below zero fails with
// common.ErrInsufficientBalance and does not consume the key.
func (s *Store) ApplyBalanceDelta(ctx context.Context, accountID, asset string, delta decimal.Decimal, key string) (decimal.Decimal, error) {
	var (
		balance decimal.Decimal
		err     error
	)
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		balance, err = s.applyOnce(ctx, accountID, asset, delta, key)
		if err == nil || !dbx.Transient(err) {
			break
		}
		s.logger.Warn(ctx, "balance transaction conflict, rerunning", "account_id", accountID, "asset", asset, "key", key, "attempt", attempt)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("apply %s %s to %s: %w", delta, asset, accountID, err)
	}

	s.logger.Info(ctx, "balance applied", "account_id", accountID, "asset", asset, "delta", delta.String(), "key", key, "balance", balance.String())
	return balance, nil
}

func (s *Store) applyOnce(ctx context.Context, accountID, asset string, delta decimal.Decimal, key string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Balances(tx)

		claimed, err := repo.RecordApplication(ctx, accountID, asset, key, delta)
		if err != nil {
			return err
		}
		if !claimed {
			balance, err = repo.Get(ctx, accountID, asset)
			return err
		}

		if err := repo.Ensure(ctx, accountID, asset); err != nil {
			return err
		}
		balance, err = repo.Adjust(ctx, accountID, asset, delta)
		return err
	})
	return balance, err
}

func (s *Store) Balance(ctx context.Context, accountID, asset string) (decimal.Decimal, error) {
	return s.repomanager.Balances(s.db).Get(ctx, accountID, asset)
}

func (s *Store) Balances(ctx context.Context, accountID string) ([]*models.Balance, error) {
	return s.repomanager.Balances(s.db).List(ctx, accountID)
}

func (s *Store) HasTrustline(ctx context.Context, accountID, asset, issuer string) (bool, error) {
	return s.repomanager.Trustlines(s.db).Has(ctx, accountID, asset, issuer)
}

// RecordTrustline stores the outcome of a trustline attempt.
func (s *Store) RecordTrustline(ctx context.Context, t *models.Trustline) error {
	return s.repomanager.Trustlines(s.db).Upsert(ctx, t)
}

func (s *Store) Trustlines(ctx context.Context, accountID string) ([]*models.Trustline, error) {
	return s.repomanager.Trustlines(s.db).List(ctx, accountID)
}

// IsEligible is the settlement gate: KYC approved and account active.
func (s *Store) IsEligible(a *models.Account) bool {
	return a != nil && a.Eligible()
}
