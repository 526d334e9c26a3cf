package intents

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var intentCols = []string{"id", "idempotency_key", "kind", "source_account_id", "destination_account_id",
	"external_destination", "memo", "requested_amount", "requested_currency", "asset_code", "resolved_amount",
	"payout_currency", "payout_amount", "status", "external_ref", "failure_reason", "parent_intent_id",
	"submitted_at", "created_at", "updated_at", "last_checked_at"}

func intentRow(id, status string, submitted any) []driver.Value {
	now := time.Now()
	return []driver.Value{id, "key-" + id, "p2p-transfer", "acc-a", "acc-b", "", "memo", "40", "SRT", "SRT", "40",
		"", "0", status, "", "", "", submitted, now, now, nil}
}

func TestCreate(t *testing.T) {
	in := &models.Intent{
		IdempotencyKey:    "k1",
		Kind:              models.KindDeposit,
		SourceAccountID:   "acc-a",
		RequestedAmount:   decimal.NewFromInt(1000),
		RequestedCurrency: "XOF",
		AssetCode:         "SRT",
		ResolvedAmount:    decimal.NewFromInt(100),
		Status:            models.IntentCreated,
	}

	t.Run("inserted", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		now := time.Now()
		mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+intents\b.*ON CONFLICT \(idempotency_key\) DO NOTHING\s+RETURNING id, created_at, updated_at$`).
			WithArgs("k1", "deposit", "acc-a", "", "", "", in.RequestedAmount, "XOF", "SRT",
				in.ResolvedAmount, "", in.PayoutAmount, "created", "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("i1", now, now))

		created, err := repo.Create(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "i1", in.ID)
	})

	t.Run("key exists", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`INSERT\s+INTO\s+intents`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

		created, err := repo.Create(context.Background(), &models.Intent{IdempotencyKey: "k1"})
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`INSERT\s+INTO\s+intents`).WillReturnError(errors.New("down"))

		_, err := repo.Create(context.Background(), &models.Intent{})
		assert.ErrorContains(t, err, "db error: down")
	})
}

func TestGetByKey(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	submitted := time.Now().Add(-time.Minute)
	mock.ExpectQuery(`(?s)FROM intents\s+WHERE idempotency_key = \$1$`).
		WithArgs("key-i1").
		WillReturnRows(sqlmock.NewRows(intentCols).AddRow(intentRow("i1", "external-pending", submitted)...))

	in, err := repo.GetByKey(context.Background(), "key-i1")
	require.NoError(t, err)
	assert.Equal(t, models.KindTransfer, in.Kind)
	assert.Equal(t, models.IntentExternalPending, in.Status)
	require.NotNil(t, in.SubmittedAt)
	assert.True(t, in.SubmittedAt.Equal(submitted))
	assert.True(t, in.ResolvedAmount.Equal(decimal.NewFromInt(40)))
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`WHERE id = \$1$`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestTransition(t *testing.T) {
	q := `(?s)^UPDATE intents SET\s+status = \$3.*WHERE id = \$1 AND status = \$2$`

	t.Run("applied", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		at := time.Now()
		mock.ExpectExec(q).
			WithArgs("i1", "created", "external-pending", "", "", "", "", sql.NullTime{Time: at, Valid: true}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Transition(context.Background(), "i1", models.IntentCreated, models.IntentExternalPending,
			models.IntentUpdate{SubmittedAt: &at})
		require.NoError(t, err)
	})

	t.Run("stale", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).
			WithArgs("i1", "external-pending", "external-settled", "tx-1", "", "", "", sql.NullTime{}).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Transition(context.Background(), "i1", models.IntentExternalPending, models.IntentExternalSettled,
			models.IntentUpdate{ExternalRef: "tx-1"})
		assert.ErrorIs(t, err, ErrStaleTransition)
	})
}

func TestListStale(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	before := time.Now()
	mock.ExpectQuery(`(?s)WHERE status = \$1 AND GREATEST\(updated_at, last_checked_at\) < \$2\s+ORDER BY GREATEST\(updated_at, last_checked_at\)\s+LIMIT \$3$`).
		WithArgs("external-settled", before, 10).
		WillReturnRows(sqlmock.NewRows(intentCols).
			AddRow(intentRow("i1", "external-settled", nil)...).
			AddRow(intentRow("i2", "external-settled", nil)...))

	got, err := repo.ListStale(context.Background(), models.IntentExternalSettled, before, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].SubmittedAt)
	assert.Equal(t, "i2", got[1].ID)
}

func TestTouch(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`^UPDATE intents SET last_checked_at = now\(\) WHERE id = \$1$`).
			WithArgs("i1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Touch(context.Background(), "i1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`UPDATE intents SET last_checked_at`).WillReturnError(errors.New("down"))

		assert.ErrorContains(t, repo.Touch(context.Background(), "i1"), "db error: down")
	})
}

func TestGetByID_LastChecked(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	checked := time.Now().Add(-time.Minute)
	row := intentRow("i1", "external-pending", nil)
	row[len(row)-1] = checked
	mock.ExpectQuery(`WHERE id = \$1$`).WithArgs("i1").
		WillReturnRows(sqlmock.NewRows(intentCols).AddRow(row...))

	in, err := repo.GetByID(context.Background(), "i1")
	require.NoError(t, err)
	require.NotNil(t, in.LastCheckedAt)
	assert.True(t, in.LastCheckedAt.Equal(checked))
}

func TestListForAccount(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)WHERE source_account_id::text = \$1 OR destination_account_id = \$1\s+ORDER BY created_at DESC`).
		WithArgs("acc-a", 20).
		WillReturnRows(sqlmock.NewRows(intentCols).AddRow(intentRow("i1", "ledger-applied", nil)...))

	got, err := repo.ListForAccount(context.Background(), "acc-a", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.IntentLedgerApplied, got[0].Status)
}
