package grpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/afriswift/settlement/internal/api"
	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/auth"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/network"
	"github.com/afriswift/settlement/internal/server/services"
	"github.com/afriswift/settlement/internal/server/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

const testSecret = "test-secret"

func nopLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeAccounts struct {
	registered services.RegisterRequest
	err        error
	profile    *services.Profile
	bank       *models.BankDetails
	trustline  network.Asset
}

func (f *fakeAccounts) Register(ctx context.Context, req services.RegisterRequest) (*models.Account, error) {
	f.registered = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Account{ID: "acc-1", AccountNumber: "AS0000001", PublicID: "GPUB"}, nil
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string) (*services.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeAccounts) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeAccounts) Profile(ctx context.Context, accountID string) (*services.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func (f *fakeAccounts) SetBankDetails(ctx context.Context, accountID string, details *models.BankDetails) error {
	f.bank = details
	return f.err
}

func (f *fakeAccounts) EstablishTrustline(ctx context.Context, accountID string, asset network.Asset) error {
	f.trustline = asset
	return f.err
}

type fakeSettlement struct {
	mu       sync.Mutex
	intent   *models.Intent
	err      error
	transfer settlement.TransferRequest
	caller   string
}

func (f *fakeSettlement) result(accountID string) (*models.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caller = accountID
	return f.intent, f.err
}

func (f *fakeSettlement) Deposit(ctx context.Context, req settlement.DepositRequest) (*models.Intent, error) {
	return f.result(req.AccountID)
}

func (f *fakeSettlement) Transfer(ctx context.Context, req settlement.TransferRequest) (*models.Intent, error) {
	f.mu.Lock()
	f.transfer = req
	f.mu.Unlock()
	return f.result(req.AccountID)
}

func (f *fakeSettlement) Withdraw(ctx context.Context, req settlement.WithdrawRequest) (*models.Intent, error) {
	return f.result(req.AccountID)
}

func (f *fakeSettlement) GetIntent(ctx context.Context, accountID, id string) (*models.Intent, error) {
	return f.result(accountID)
}

func (f *fakeSettlement) ListIntents(ctx context.Context, accountID string, limit int) ([]*models.Intent, error) {
	in, err := f.result(accountID)
	if err != nil {
		return nil, err
	}
	return []*models.Intent{in}, nil
}

type fakeReceipts struct{ url string }

func (f *fakeReceipts) URL(ctx context.Context, in *models.Intent) (string, error) {
	return f.url + in.ID, nil
}

type fakeObserver struct {
	mu    sync.Mutex
	calls map[string]string
}

func (f *fakeObserver) ObserveRPC(method, code string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]string{}
	}
	f.calls[method] = code
}

// startServer serves s over an in-memory listener and returns a client.
func startServer(t *testing.T, s *GRPCServer) api.SettlementClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return api.NewSettlementClient(conn)
}

func authed(t *testing.T, accountID string) context.Context {
	t.Helper()
	token, err := auth.GenerateToken(accountID, []byte(testSecret), time.Minute)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, token)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := NewGRPCServer("127.0.0.1:0", nopLogger(), &fakeAccounts{}, &fakeSettlement{}, testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	s := NewGRPCServer("bad::address", nopLogger(), &fakeAccounts{}, &fakeSettlement{}, testSecret)
	err := s.Run(context.Background())
	assert.Error(t, err)
}

func TestServer_PublicMethodsNeedNoToken(t *testing.T) {
	obs := &fakeObserver{}
	accounts := &fakeAccounts{}
	client := startServer(t, NewGRPCServer("", nopLogger(), accounts, &fakeSettlement{}, testSecret, WithObserver(obs)))
	ctx := context.Background()

	pong, err := client.Ping(ctx, &api.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", pong.Status)

	reg, err := client.Register(ctx, &api.RegisterRequest{Email: "a@example.com", Password: "secret123", Country: "GH"})
	require.NoError(t, err)
	assert.Equal(t, "AS0000001", reg.AccountNumber)
	assert.Equal(t, "GH", accounts.registered.Country)

	tokens, err := client.Login(ctx, &api.LoginRequest{Email: "a@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "access", tokens.AccessToken)

	tokens, err = client.RefreshToken(ctx, &api.RefreshTokenRequest{RefreshToken: "refresh"})
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", tokens.RefreshToken)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, "OK", obs.calls[api.MethodPing])
	assert.Equal(t, "OK", obs.calls[api.MethodLogin])
}
