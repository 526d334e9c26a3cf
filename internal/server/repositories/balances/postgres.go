package balances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/dbx"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/shopspring/decimal"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) RecordApplication(ctx context.Context, accountID, asset, key string, delta decimal.Decimal) (bool, error) {
	query :=
		`INSERT INTO balance_applications (account_id, asset_code, idempotency_key, delta)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, asset_code, idempotency_key) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, accountID, asset, key, delta)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Ensure(ctx context.Context, accountID, asset string) error {
	query :=
		`INSERT INTO balances (account_id, asset_code)
		 VALUES ($1, $2)
		 ON CONFLICT (account_id, asset_code) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, accountID, asset); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Adjust(ctx context.Context, accountID, asset string, delta decimal.Decimal) (decimal.Decimal, error) {
	query :=
		`UPDATE balances SET amount = amount + $3, updated_at = now()
		 WHERE account_id = $1 AND asset_code = $2 AND amount + $3 >= 0
		 RETURNING amount`

	var amount decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, accountID, asset, delta).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, common.ErrInsufficientBalance
		}
		return decimal.Zero, fmt.Errorf("db error: %w", err)
	}
	return amount, nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID, asset string) (decimal.Decimal, error) {
	query :=
		`SELECT amount FROM balances
		 WHERE account_id = $1 AND asset_code = $2`

	var amount decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, accountID, asset).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("db error: %w", err)
	}
	return amount, nil
}

func (r *PostgresRepository) List(ctx context.Context, accountID string) ([]*models.Balance, error) {
	query :=
		`SELECT asset_code, amount, updated_at FROM balances
		 WHERE account_id = $1
		 ORDER BY asset_code`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Balance
	for rows.Next() {
		b := &models.Balance{AccountID: accountID}
		if err := rows.Scan(&b.AssetCode, &b.Amount, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
