package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/afriswift/settlement/internal/api"
	"github.com/afriswift/settlement/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	conn   *grpc.ClientConn
	client api.SettlementClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken = access, refresh
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if method == api.MethodRefreshToken {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, refresh := s.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if refresh == "" {
		return err
	}

	resp, rerr := s.client.RefreshToken(ctx, &api.RefreshTokenRequest{RefreshToken: refresh})
	if rerr != nil {
		return rerr
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)

	return invoker(withAccessToken(ctx, resp.AccessToken), method, req, reply, cc, opts...)
}

// NewGRPCClient connects to endpoint. Extra dial options are appended after
// the defaults.
func NewGRPCClient(endpoint string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{}

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpoint, dial...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = api.NewSettlementClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	resp, err := s.client.Register(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) error {
	resp, err := s.client.Login(ctx, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return s.mapError(err)
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

// Logout forgets the session tokens.
func (s *GRPCClient) Logout() {
	s.setTokens("", "")
}

func (s *GRPCClient) loggedIn() error {
	if access, _ := s.tokens(); access == "" {
		return ErrNotLoggedIn
	}
	return nil
}

func (s *GRPCClient) Profile(ctx context.Context) (*api.ProfileResponse, error) {
	if err := s.loggedIn(); err != nil {
		return nil, err
	}
	resp, err := s.client.Profile(ctx, &api.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) SetBankDetails(ctx context.Context, bank api.BankDetails) error {
	if err := s.loggedIn(); err != nil {
		return err
	}
	_, err := s.client.SetBankDetails(ctx, &api.SetBankDetailsRequest{Bank: bank})
	return s.mapError(err)
}

func (s *GRPCClient) EstablishTrustline(ctx context.Context, assetCode, issuer string) error {
	if err := s.loggedIn(); err != nil {
		return err
	}
	_, err := s.client.EstablishTrustline(ctx, &api.EstablishTrustlineRequest{AssetCode: assetCode, Issuer: issuer})
	return s.mapError(err)
}

func (s *GRPCClient) Deposit(ctx context.Context, req *api.DepositRequest) (*api.Intent, error) {
	if err := s.loggedIn(); err != nil {
		return nil, err
	}
	return intentOf(s.client.Deposit(ctx, req))
}

func (s *GRPCClient) Transfer(ctx context.Context, req *api.TransferRequest) (*api.Intent, error) {
	if err := s.loggedIn(); err != nil {
		return nil, err
	}
	return intentOf(s.client.Transfer(ctx, req))
}

func (s *GRPCClient) Withdraw(ctx context.Context, req *api.WithdrawRequest) (*api.Intent, error) {
	if err := s.loggedIn(); err != nil {
		return nil, err
	}
	return intentOf(s.client.Withdraw(ctx, req))
}

func (s *GRPCClient) GetIntent(ctx context.Context, id string) (*api.Intent, error) {
	if err := s.loggedIn(); err != nil {
		return nil, err
	}
	return intentOf(s.client.GetIntent(ctx, &api.GetIntentRequest{IntentID: id}))
}

func (s *GRPCClient) ListIntents(ctx context.Context, limit int) ([]api.Intent, error) {
	if err := s.loggedIn(); err != nil {
		return nil, err
	}
	resp, err := s.client.ListIntents(ctx, &api.ListIntentsRequest{Limit: limit})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Intents, nil
}

func (s *GRPCClient) ReceiptURL(ctx context.Context, id string) (string, error) {
	if err := s.loggedIn(); err != nil {
		return "", err
	}
	resp, err := s.client.GetReceiptURL(ctx, &api.ReceiptURLRequest{IntentID: id})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.URL, nil
}

func intentOf(resp *api.IntentResponse, err error) (*api.Intent, error) {
	if err != nil {
		return nil, mapError(err)
	}
	return &resp.Intent, nil
}

func (s *GRPCClient) mapError(err error) error {
	return mapError(err)
}

// mapError turns transport failures into ErrUnauthorized or ErrUnavailable.
// Other statuses keep their server message.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("%s: %s", st.Code(), st.Message())
	}
}
