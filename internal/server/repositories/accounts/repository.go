// Package accounts declares the repository contract for ledger accounts.
package accounts

import (
	"context"

	"github.com/afriswift/settlement/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	SetBankDetails(ctx context.Context, id string, details *models.BankDetails) error
	SetKYCState(ctx context.Context, accountNumber string, state models.KYCState) error
	SetStatus(ctx context.Context, accountNumber string, status models.AccountStatus) error
}
