package trustlines

import (
	"context"
	"fmt"

	"github.com/afriswift/settlement/internal/dbx"
	"github.com/afriswift/settlement/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, t *models.Trustline) error {
	query :=
		`INSERT INTO trustlines (account_id, asset_code, issuer, established)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, asset_code, issuer)
		 DO UPDATE SET established = trustlines.established OR EXCLUDED.established`

	if _, err := r.db.ExecContext(ctx, query, t.AccountID, t.AssetCode, t.Issuer, t.Established); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Has(ctx context.Context, accountID, asset, issuer string) (bool, error) {
	query :=
		`SELECT EXISTS (
		     SELECT 1 FROM trustlines
		     WHERE account_id = $1 AND asset_code = $2 AND issuer = $3 AND established
		 )`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, accountID, asset, issuer).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) List(ctx context.Context, accountID string) ([]*models.Trustline, error) {
	query :=
		`SELECT asset_code, issuer, established, created_at FROM trustlines
		 WHERE account_id = $1
		 ORDER BY asset_code`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Trustline
	for rows.Next() {
		t := &models.Trustline{AccountID: accountID}
		if err := rows.Scan(&t.AssetCode, &t.Issuer, &t.Established, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
