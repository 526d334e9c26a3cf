package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "afriswift.settlement.SettlementService"

// Full method names, as seen by interceptors.
const (
	MethodPing               = "/" + ServiceName + "/Ping"
	MethodRegister           = "/" + ServiceName + "/Register"
	MethodLogin              = "/" + ServiceName + "/Login"
	MethodRefreshToken       = "/" + ServiceName + "/RefreshToken"
	MethodProfile            = "/" + ServiceName + "/Profile"
	MethodSetBankDetails     = "/" + ServiceName + "/SetBankDetails"
	MethodEstablishTrustline = "/" + ServiceName + "/EstablishTrustline"
	MethodDeposit            = "/" + ServiceName + "/Deposit"
	MethodTransfer           = "/" + ServiceName + "/Transfer"
	MethodWithdraw           = "/" + ServiceName + "/Withdraw"
	MethodGetIntent          = "/" + ServiceName + "/GetIntent"
	MethodListIntents        = "/" + ServiceName + "/ListIntents"
	MethodGetReceiptURL      = "/" + ServiceName + "/GetReceiptURL"
)

// SettlementServer is implemented by the server side.
type SettlementServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*TokenResponse, error)
	Profile(context.Context, *Empty) (*ProfileResponse, error)
	SetBankDetails(context.Context, *SetBankDetailsRequest) (*Empty, error)
	EstablishTrustline(context.Context, *EstablishTrustlineRequest) (*Empty, error)
	Deposit(context.Context, *DepositRequest) (*IntentResponse, error)
	Transfer(context.Context, *TransferRequest) (*IntentResponse, error)
	Withdraw(context.Context, *WithdrawRequest) (*IntentResponse, error)
	GetIntent(context.Context, *GetIntentRequest) (*IntentResponse, error)
	ListIntents(context.Context, *ListIntentsRequest) (*ListIntentsResponse, error)
	GetReceiptURL(context.Context, *ReceiptURLRequest) (*ReceiptURLResponse, error)
}

func unary[Req, Resp any](name string, call func(SettlementServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SettlementServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SettlementServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the settlement service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SettlementServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", SettlementServer.Ping),
		unary("Register", SettlementServer.Register),
		unary("Login", SettlementServer.Login),
		unary("RefreshToken", SettlementServer.RefreshToken),
		unary("Profile", SettlementServer.Profile),
		unary("SetBankDetails", SettlementServer.SetBankDetails),
		unary("EstablishTrustline", SettlementServer.EstablishTrustline),
		unary("Deposit", SettlementServer.Deposit),
		unary("Transfer", SettlementServer.Transfer),
		unary("Withdraw", SettlementServer.Withdraw),
		unary("GetIntent", SettlementServer.GetIntent),
		unary("ListIntents", SettlementServer.ListIntents),
		unary("GetReceiptURL", SettlementServer.GetReceiptURL),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "settlement.json",
}

func RegisterSettlementServer(s grpc.ServiceRegistrar, srv SettlementServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// SettlementClient is the client API of the service.
type SettlementClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*TokenResponse, error)
	Profile(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ProfileResponse, error)
	SetBankDetails(ctx context.Context, in *SetBankDetailsRequest, opts ...grpc.CallOption) (*Empty, error)
	EstablishTrustline(ctx context.Context, in *EstablishTrustlineRequest, opts ...grpc.CallOption) (*Empty, error)
	Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*IntentResponse, error)
	Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*IntentResponse, error)
	Withdraw(ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption) (*IntentResponse, error)
	GetIntent(ctx context.Context, in *GetIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error)
	ListIntents(ctx context.Context, in *ListIntentsRequest, opts ...grpc.CallOption) (*ListIntentsResponse, error)
	GetReceiptURL(ctx context.Context, in *ReceiptURLRequest, opts ...grpc.CallOption) (*ReceiptURLResponse, error)
}

type settlementClient struct {
	cc grpc.ClientConnInterface
}

func NewSettlementClient(cc grpc.ClientConnInterface) SettlementClient {
	return &settlementClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *settlementClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *settlementClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *settlementClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *settlementClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, MethodRefreshToken, in, opts)
}

func (c *settlementClient) Profile(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ProfileResponse, error) {
	return invoke[ProfileResponse](ctx, c.cc, MethodProfile, in, opts)
}

func (c *settlementClient) SetBankDetails(ctx context.Context, in *SetBankDetailsRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodSetBankDetails, in, opts)
}

func (c *settlementClient) EstablishTrustline(ctx context.Context, in *EstablishTrustlineRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodEstablishTrustline, in, opts)
}

func (c *settlementClient) Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*IntentResponse, error) {
	return invoke[IntentResponse](ctx, c.cc, MethodDeposit, in, opts)
}

func (c *settlementClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*IntentResponse, error) {
	return invoke[IntentResponse](ctx, c.cc, MethodTransfer, in, opts)
}

func (c *settlementClient) Withdraw(ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption) (*IntentResponse, error) {
	return invoke[IntentResponse](ctx, c.cc, MethodWithdraw, in, opts)
}

func (c *settlementClient) GetIntent(ctx context.Context, in *GetIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error) {
	return invoke[IntentResponse](ctx, c.cc, MethodGetIntent, in, opts)
}

func (c *settlementClient) ListIntents(ctx context.Context, in *ListIntentsRequest, opts ...grpc.CallOption) (*ListIntentsResponse, error) {
	return invoke[ListIntentsResponse](ctx, c.cc, MethodListIntents, in, opts)
}

func (c *settlementClient) GetReceiptURL(ctx context.Context, in *ReceiptURLRequest, opts ...grpc.CallOption) (*ReceiptURLResponse, error) {
	return invoke[ReceiptURLResponse](ctx, c.cc, MethodGetReceiptURL, in, opts)
}
