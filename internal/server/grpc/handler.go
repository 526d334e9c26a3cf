package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/afriswift/settlement/internal/api"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/network"
	"github.com/afriswift/settlement/internal/server/services"
	"github.com/afriswift/settlement/internal/server/settlement"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// handler implements api.SettlementServer on top of the server's services.
type handler struct {
	s *GRPCServer
}

func (h *handler) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {
	return &api.PingResponse{Status: "OK"}, nil
}

func (h *handler) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	h.s.logger.Info(ctx, "Registration request")

	account, err := h.s.accounts.Register(ctx, services.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Country:   req.Country,
	})
	if err != nil {
		h.s.logger.Error(ctx, "registration failed", "error", err)
		return nil, toStatus(err)
	}

	h.s.logger.Info(ctx, "Registered", "account_number", account.AccountNumber)
	return &api.RegisterResponse{AccountID: account.ID, AccountNumber: account.AccountNumber, PublicID: account.PublicID}, nil
}

func (h *handler) Login(ctx context.Context, req *api.LoginRequest) (*api.TokenResponse, error) {
	tokens, err := h.s.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (h *handler) RefreshToken(ctx context.Context, req *api.RefreshTokenRequest) (*api.TokenResponse, error) {
	tokens, err := h.s.accounts.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (h *handler) Profile(ctx context.Context, _ *api.Empty) (*api.ProfileResponse, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	p, err := h.s.accounts.Profile(ctx, accountID)
	if err != nil {
		return nil, toStatus(err)
	}

	a := p.Account
	resp := &api.ProfileResponse{
		AccountID:     a.ID,
		AccountNumber: a.AccountNumber,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Phone:         a.Phone,
		Country:       a.Country,
		PublicID:      a.PublicID,
		KYC:           string(a.KYC),
		Status:        string(a.Status),
		Balances:      []api.Balance{},
		Trustlines:    []api.Trustline{},
	}
	if a.Bank != nil {
		resp.Bank = &api.BankDetails{
			AccountNumber: a.Bank.AccountNumber,
			AccountType:   a.Bank.AccountType,
			BankName:      a.Bank.BankName,
			Branch:        a.Bank.Branch,
			ClearingCode:  a.Bank.ClearingCode,
		}
	}
	for _, b := range p.Balances {
		resp.Balances = append(resp.Balances, api.Balance{Asset: b.AssetCode, Amount: b.Amount.String()})
	}
	for _, t := range p.Trustlines {
		resp.Trustlines = append(resp.Trustlines, api.Trustline{Asset: t.AssetCode, Issuer: t.Issuer})
	}
	return resp, nil
}

func (h *handler) SetBankDetails(ctx context.Context, req *api.SetBankDetailsRequest) (*api.Empty, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	err = h.s.accounts.SetBankDetails(ctx, accountID, &models.BankDetails{
		AccountNumber: req.Bank.AccountNumber,
		AccountType:   req.Bank.AccountType,
		BankName:      req.Bank.BankName,
		Branch:        req.Bank.Branch,
		ClearingCode:  req.Bank.ClearingCode,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (h *handler) EstablishTrustline(ctx context.Context, req *api.EstablishTrustlineRequest) (*api.Empty, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	asset := network.Asset{Code: strings.ToUpper(req.AssetCode), Issuer: req.Issuer}
	if err := h.s.accounts.EstablishTrustline(ctx, accountID, asset); err != nil {
		h.s.logger.Warn(ctx, "trustline request failed", "account_id", accountID, "error", err)
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (h *handler) Deposit(ctx context.Context, req *api.DepositRequest) (*api.IntentResponse, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	in, err := h.s.settlement.Deposit(ctx, settlement.DepositRequest{
		AccountID:      accountID,
		IdempotencyKey: req.IdempotencyKey,
		Amount:         amount,
		Currency:       req.Currency,
	})
	return intentResponse(in, err)
}

func (h *handler) Transfer(ctx context.Context, req *api.TransferRequest) (*api.IntentResponse, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	in, err := h.s.settlement.Transfer(ctx, settlement.TransferRequest{
		AccountID:       accountID,
		IdempotencyKey:  req.IdempotencyKey,
		RecipientNumber: strings.ToUpper(strings.TrimSpace(req.RecipientAccountNumber)),
		Amount:          amount,
		Currency:        req.Currency,
	})
	return intentResponse(in, err)
}

func (h *handler) Withdraw(ctx context.Context, req *api.WithdrawRequest) (*api.IntentResponse, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	in, err := h.s.settlement.Withdraw(ctx, settlement.WithdrawRequest{
		AccountID:      accountID,
		IdempotencyKey: req.IdempotencyKey,
		Amount:         amount,
		Currency:       req.Currency,
	})
	return intentResponse(in, err)
}

func (h *handler) GetIntent(ctx context.Context, req *api.GetIntentRequest) (*api.IntentResponse, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	in, err := h.s.settlement.GetIntent(ctx, accountID, req.IntentID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.IntentResponse{Intent: toAPIIntent(in)}, nil
}

func (h *handler) ListIntents(ctx context.Context, req *api.ListIntentsRequest) (*api.ListIntentsResponse, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	list, err := h.s.settlement.ListIntents(ctx, accountID, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &api.ListIntentsResponse{Intents: make([]api.Intent, 0, len(list))}
	for _, in := range list {
		resp.Intents = append(resp.Intents, toAPIIntent(in))
	}
	return resp, nil
}

func (h *handler) GetReceiptURL(ctx context.Context, req *api.ReceiptURLRequest) (*api.ReceiptURLResponse, error) {
	accountID, err := accountFrom(ctx)
	if err != nil {
		return nil, err
	}
	if h.s.receipts == nil {
		return nil, status.Error(codes.Unimplemented, "receipt archive disabled")
	}
	in, err := h.s.settlement.GetIntent(ctx, accountID, req.IntentID)
	if err != nil {
		return nil, toStatus(err)
	}
	if in.Status != models.IntentLedgerApplied {
		return nil, status.Errorf(codes.FailedPrecondition, "intent is %s, receipts exist for applied intents only", in.Status)
	}
	url, err := h.s.receipts.URL(ctx, in)
	if err != nil {
		h.s.logger.Error(ctx, "presign receipt", "intent_id", in.ID, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return &api.ReceiptURLResponse{URL: url}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid amount %q", s)
	}
	return d, nil
}

func intentResponse(in *models.Intent, err error) (*api.IntentResponse, error) {
	if err != nil {
		return nil, intentStatus(in, err)
	}
	return &api.IntentResponse{Intent: toAPIIntent(in)}, nil
}

func toAPIIntent(in *models.Intent) api.Intent {
	out := api.Intent{
		ID:                   in.ID,
		Kind:                 string(in.Kind),
		Status:               string(in.Status),
		SourceAccountID:      in.SourceAccountID,
		DestinationAccountID: in.DestinationAccountID,
		RequestedAmount:      in.RequestedAmount.String(),
		RequestedCurrency:    in.RequestedCurrency,
		Asset:                in.AssetCode,
		Amount:               in.ResolvedAmount.String(),
		PayoutCurrency:       in.PayoutCurrency,
		ExternalRef:          in.ExternalRef,
		FailureReason:        in.FailureReason,
		CreatedAt:            in.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            in.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if in.PayoutCurrency != "" {
		out.PayoutAmount = in.PayoutAmount.String()
	}
	return out
}
