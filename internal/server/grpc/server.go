// Package grpc serves the settlement API over gRPC with the JSON codec from
// package api.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/afriswift/settlement/internal/api"
	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/network"
	"github.com/afriswift/settlement/internal/server/services"
	"github.com/afriswift/settlement/internal/server/settlement"
	"google.golang.org/grpc"
)

// Accounts is the account service as seen by the handlers.
type Accounts interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Profile(ctx context.Context, accountID string) (*services.Profile, error)
	SetBankDetails(ctx context.Context, accountID string, details *models.BankDetails) error
	EstablishTrustline(ctx context.Context, accountID string, asset network.Asset) error
}

// Settlement is the orchestrator as seen by the handlers.
type Settlement interface {
	Deposit(ctx context.Context, req settlement.DepositRequest) (*models.Intent, error)
	Transfer(ctx context.Context, req settlement.TransferRequest) (*models.Intent, error)
	Withdraw(ctx context.Context, req settlement.WithdrawRequest) (*models.Intent, error)
	GetIntent(ctx context.Context, accountID, id string) (*models.Intent, error)
	ListIntents(ctx context.Context, accountID string, limit int) ([]*models.Intent, error)
}

// ReceiptLinker hands out download links for archived receipts.
type ReceiptLinker interface {
	URL(ctx context.Context, in *models.Intent) (string, error)
}

// RPCObserver records finished calls.
type RPCObserver interface {
	ObserveRPC(method, code string, d time.Duration)
}

type GRPCServer struct {
	address    string
	accounts   Accounts
	settlement Settlement
	receipts   ReceiptLinker
	observer   RPCObserver
	logger     logging.Logger
	jwtSecret  []byte
}

type Option func(*GRPCServer)

// WithReceipts enables GetReceiptURL.
func WithReceipts(r ReceiptLinker) Option { return func(s *GRPCServer) { s.receipts = r } }

func WithObserver(o RPCObserver) Option { return func(s *GRPCServer) { s.observer = o } }

func NewGRPCServer(address string, l logging.Logger, accounts Accounts, st Settlement, secretKey string, opts ...Option) *GRPCServer {
	s := &GRPCServer{
		address:    address,
		logger:     l.With("module", "grpc_server"),
		accounts:   accounts,
		settlement: st,
		jwtSecret:  []byte(secretKey),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.observeInterceptor, s.accessTokenInterceptor))
	api.RegisterSettlementServer(srv, &handler{s})
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
