package balances

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/afriswift/settlement/internal/common"
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

func TestRecordApplication(t *testing.T) {
	delta := decimal.RequireFromString("40")

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "first time", affected: 1, want: true},
		{name: "already applied", affected: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectExec(`(?s)^INSERT\s+INTO\s+balance_applications\b.*ON CONFLICT .* DO NOTHING$`).
				WithArgs("acc-1", "SRT", "intent-1", delta).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := repo.RecordApplication(context.Background(), "acc-1", "SRT", "intent-1", delta)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordApplication_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`INSERT\s+INTO\s+balance_applications`).WillReturnError(errors.New("db down"))

	_, err := repo.RecordApplication(context.Background(), "acc-1", "SRT", "k", decimal.NewFromInt(1))
	assert.ErrorContains(t, err, "db error: db down")
}

func TestEnsure(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+balances\b.*DO NOTHING$`).
		WithArgs("acc-1", "SRT").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Ensure(context.Background(), "acc-1", "SRT"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjust(t *testing.T) {
	t.Run("applies", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		delta := decimal.RequireFromString("-40")
		mock.ExpectQuery(`(?s)^UPDATE balances SET amount = amount \+ \$3.*amount \+ \$3 >= 0\s+RETURNING amount$`).
			WithArgs("acc-1", "SRT", delta).
			WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow("60.0000000"))

		got, err := repo.Adjust(context.Background(), "acc-1", "SRT", delta)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(60)), got.String())
	})

	t.Run("would go negative", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`^UPDATE balances`).WillReturnError(sql.ErrNoRows)

		_, err := repo.Adjust(context.Background(), "acc-1", "SRT", decimal.NewFromInt(-1000))
		assert.ErrorIs(t, err, common.ErrInsufficientBalance)
	})
}

func TestGet(t *testing.T) {
	t.Run("missing row is zero", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT amount FROM balances`).
			WithArgs("acc-1", "GHS").
			WillReturnError(sql.ErrNoRows)

		got, err := repo.Get(context.Background(), "acc-1", "GHS")
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("existing", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT amount FROM balances`).
			WithArgs("acc-1", "SRT").
			WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow("100.5"))

		got, err := repo.Get(context.Background(), "acc-1", "SRT")
		require.NoError(t, err)
		assert.Equal(t, "100.5", got.String())
	})
}

func TestList(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(`(?s)^SELECT asset_code, amount, updated_at FROM balances.*ORDER BY asset_code$`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"asset_code", "amount", "updated_at"}).
			AddRow("GHS", "12", now).
			AddRow("SRT", "60", now))

	got, err := repo.List(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "GHS", got[0].AssetCode)
	assert.Equal(t, "60", got[1].Amount.String())
	assert.Equal(t, "acc-1", got[1].AccountID)
}
