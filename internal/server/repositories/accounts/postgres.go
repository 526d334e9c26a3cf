package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

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

const selectColumns = `id, account_number, email, first_name, last_name, phone, country,
		password_hash, public_id, sealed_seed, seed_nonce, kyc_state, status, bank_details, created_at`

// Create inserts account and fills in its generated id. A duplicate email,
// account number or public id yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (account_number, email, first_name, last_name, phone, country,
		     password_hash, public_id, sealed_seed, seed_nonce, kyc_state, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		account.AccountNumber, account.Email, account.FirstName, account.LastName, account.Phone, account.Country,
		account.PasswordHash, account.PublicID, account.SealedSeed, account.SeedNonce,
		string(account.KYC), string(account.Status)).Scan(&account.ID, &account.CreatedAt)

	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", common.ErrorAlreadyExists, constraint)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a := &models.Account{}
	var kyc, status string
	var bank []byte

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.AccountNumber, &a.Email, &a.FirstName, &a.LastName, &a.Phone, &a.Country,
		&a.PasswordHash, &a.PublicID, &a.SealedSeed, &a.SeedNonce, &kyc, &status, &bank, &a.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.KYC = models.KYCState(kyc)
	a.Status = models.AccountStatus(status)

	if len(bank) > 0 {
		a.Bank = &models.BankDetails{}
		if err := json.Unmarshal(bank, a.Bank); err != nil {
			return nil, fmt.Errorf("bank details: %w", err)
		}
	}

	return a, nil
}

func (r *PostgresRepository) SetBankDetails(ctx context.Context, id string, details *models.BankDetails) error {
	b, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return r.execOne(ctx, `UPDATE accounts SET bank_details = $2 WHERE id = $1`, id, b)
}

func (r *PostgresRepository) SetKYCState(ctx context.Context, accountNumber string, state models.KYCState) error {
	return r.execOne(ctx, `UPDATE accounts SET kyc_state = $2 WHERE account_number = $1`, accountNumber, string(state))
}

func (r *PostgresRepository) SetStatus(ctx context.Context, accountNumber string, status models.AccountStatus) error {
	return r.execOne(ctx, `UPDATE accounts SET status = $2 WHERE account_number = $1`, accountNumber, string(status))
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
