// Package client talks to the settlement server over gRPC. It keeps the
// session token pair in memory and transparently refreshes an expired
// access token once per call.
package client

import (
	"context"

	"github.com/afriswift/settlement/internal/api"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error)
	Login(ctx context.Context, email, password string) error
	Logout()
	Profile(ctx context.Context) (*api.ProfileResponse, error)
	SetBankDetails(ctx context.Context, bank api.BankDetails) error
	EstablishTrustline(ctx context.Context, assetCode, issuer string) error
	Deposit(ctx context.Context, req *api.DepositRequest) (*api.Intent, error)
	Transfer(ctx context.Context, req *api.TransferRequest) (*api.Intent, error)
	Withdraw(ctx context.Context, req *api.WithdrawRequest) (*api.Intent, error)
	GetIntent(ctx context.Context, id string) (*api.Intent, error)
	ListIntents(ctx context.Context, limit int) ([]api.Intent, error)
	ReceiptURL(ctx context.Context, id string) (string, error)
}
