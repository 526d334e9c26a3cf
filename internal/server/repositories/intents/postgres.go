package intents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/dbx"
	"github.com/afriswift/settlement/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `SELECT id, idempotency_key, kind, source_account_id, destination_account_id,
		external_destination, memo, requested_amount, requested_currency, asset_code, resolved_amount,
		payout_currency, payout_amount, status, external_ref, failure_reason, parent_intent_id,
		submitted_at, created_at, updated_at, last_checked_at
	 FROM intents`

func (r *PostgresRepository) Create(ctx context.Context, in *models.Intent) (bool, error) {
	query :=
		`INSERT INTO intents (idempotency_key, kind, source_account_id, destination_account_id,
		     external_destination, memo, requested_amount, requested_currency, asset_code,
		     resolved_amount, payout_currency, payout_amount, status, parent_intent_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		in.IdempotencyKey, string(in.Kind), in.SourceAccountID, in.DestinationAccountID,
		in.ExternalDestination, in.Memo, in.RequestedAmount, in.RequestedCurrency, in.AssetCode,
		in.ResolvedAmount, in.PayoutCurrency, in.PayoutAmount, string(in.Status), in.ParentIntentID,
	).Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Intent, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByKey(ctx context.Context, key string) (*models.Intent, error) {
	return r.getOne(ctx, selectColumns+` WHERE idempotency_key = $1`, key)
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to models.IntentStatus, upd models.IntentUpdate) error {
	query :=
		`UPDATE intents SET
		     status = $3,
		     external_ref = COALESCE(NULLIF($4, ''), external_ref),
		     failure_reason = COALESCE(NULLIF($5, ''), failure_reason),
		     external_destination = COALESCE(NULLIF($6, ''), external_destination),
		     memo = COALESCE(NULLIF($7, ''), memo),
		     submitted_at = COALESCE($8, submitted_at),
		     updated_at = now()
		 WHERE id = $1 AND status = $2`

	var submitted sql.NullTime
	if upd.SubmittedAt != nil {
		submitted = sql.NullTime{Time: *upd.SubmittedAt, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query, id, string(from), string(to),
		upd.ExternalRef, upd.FailureReason, upd.ExternalDestination, upd.Memo, submitted)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrStaleTransition
	}
	return nil
}

func (r *PostgresRepository) ListStale(ctx context.Context, status models.IntentStatus, before time.Time, limit int) ([]*models.Intent, error) {
	return r.list(ctx, selectColumns+`
	 WHERE status = $1 AND GREATEST(updated_at, last_checked_at) < $2
	 ORDER BY GREATEST(updated_at, last_checked_at)
	 LIMIT $3`, string(status), before, limit)
}

func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE intents SET last_checked_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListForAccount(ctx context.Context, accountID string, limit int) ([]*models.Intent, error) {
	return r.list(ctx, selectColumns+`
	 WHERE source_account_id::text = $1 OR destination_account_id = $1
	 ORDER BY created_at DESC
	 LIMIT $2`, accountID, limit)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIntent(s scanner) (*models.Intent, error) {
	in := &models.Intent{}
	var kind, status string
	var submitted, checked sql.NullTime

	err := s.Scan(&in.ID, &in.IdempotencyKey, &kind, &in.SourceAccountID, &in.DestinationAccountID,
		&in.ExternalDestination, &in.Memo, &in.RequestedAmount, &in.RequestedCurrency, &in.AssetCode,
		&in.ResolvedAmount, &in.PayoutCurrency, &in.PayoutAmount, &status, &in.ExternalRef,
		&in.FailureReason, &in.ParentIntentID, &submitted, &in.CreatedAt, &in.UpdatedAt, &checked)
	if err != nil {
		return nil, err
	}

	in.Kind = models.IntentKind(kind)
	in.Status = models.IntentStatus(status)
	if submitted.Valid {
		t := submitted.Time
		in.SubmittedAt = &t
	}
	if checked.Valid {
		t := checked.Time
		in.LastCheckedAt = &t
	}
	return in, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Intent, error) {
	in, err := scanIntent(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return in, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Intent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
