package anchor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/afriswift/settlement/internal/netx"
	"github.com/afriswift/settlement/internal/server/network"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// HTTPClient talks to an anchor exposing /auth and a /sep6 transfer server.
type HTTPClient struct {
	authURL     string
	transferURL string
	signer      *network.KeyPair
	http        *http.Client
	limiter     *rate.Limiter
}

// NewHTTPClient builds a client for the anchor at baseURL. Outbound calls
// are limited to rps requests per second.
func NewHTTPClient(baseURL string, signer *network.KeyPair, timeout time.Duration, rps float64) *HTTPClient {
	base := strings.TrimRight(baseURL, "/")
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &HTTPClient{
		authURL:     base + "/auth",
		transferURL: base + "/sep6",
		signer:      signer,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// Authenticate fetches a challenge for the service account, signs it and
// exchanges it for a bearer token.
func (c *HTTPClient) Authenticate(ctx context.Context) (string, error) {
	q := url.Values{"account": {c.signer.Address()}}
	body, err := c.do(ctx, http.MethodGet, c.authURL+"?"+q.Encode(), "", nil)
	if err != nil {
		return "", fmt.Errorf("fetch challenge: %w", err)
	}
	challenge := gjson.GetBytes(body, "transaction").String()
	raw, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("fetch challenge: malformed challenge")
	}

	signed, err := json.Marshal(map[string]string{
		"transaction": challenge,
		"account":     c.signer.Address(),
		"signature":   base64.StdEncoding.EncodeToString(c.signer.Sign(raw)),
	})
	if err != nil {
		return "", err
	}
	form := url.Values{"transaction": {base64.StdEncoding.EncodeToString(signed)}}
	body, err = c.do(ctx, http.MethodPost, c.authURL, "", form)
	if err != nil {
		return "", fmt.Errorf("submit challenge: %w", err)
	}
	token := gjson.GetBytes(body, "token").String()
	if token == "" {
		return "", errors.New("submit challenge: no token in response")
	}
	return token, nil
}

func (c *HTTPClient) InitiateDeposit(ctx context.Context, token, publicID, asset string, d DepositDetails) (*DepositAck, error) {
	q := url.Values{
		"asset_code": {asset},
		"account":    {publicID},
		"amount":     {d.Amount.String()},
	}
	setIf(q, "type", d.Type)
	if d.Memo != "" {
		q.Set("memo", d.Memo)
		q.Set("memo_type", "text")
	}
	setIf(q, "external_transaction_id", d.ExternalID)

	body, err := c.do(ctx, http.MethodGet, c.transferURL+"/deposit?"+q.Encode(), token, nil)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	return &DepositAck{
		ID:   doc.Get("id").String(),
		How:  doc.Get("how").String(),
		ETA:  doc.Get("eta").Int(),
		Memo: d.Memo,
	}, nil
}

func (c *HTTPClient) InitiateWithdrawal(ctx context.Context, token, publicID, asset string, d WithdrawDetails) (*WithdrawAck, error) {
	q := url.Values{
		"asset_code": {asset},
		"account":    {publicID},
		"amount":     {d.Amount.String()},
	}
	setIf(q, "type", d.Type)
	setIf(q, "dest", d.Dest)
	setIf(q, "dest_extra", d.DestExtra)
	setIf(q, "external_transaction_id", d.ExternalID)

	body, err := c.do(ctx, http.MethodGet, c.transferURL+"/withdraw?"+q.Encode(), token, nil)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	ack := &WithdrawAck{
		ID:        doc.Get("id").String(),
		AccountID: doc.Get("account_id").String(),
		Memo:      doc.Get("memo").String(),
		MemoType:  doc.Get("memo_type").String(),
	}
	if ack.AccountID == "" {
		return nil, &Rejection{Status: http.StatusOK, Message: "withdraw response without account_id"}
	}
	return ack, nil
}

// FindTransaction looks up a transaction by the caller-supplied external id.
func (c *HTTPClient) FindTransaction(ctx context.Context, token, externalID string) (*Transaction, error) {
	q := url.Values{"external_transaction_id": {externalID}}
	body, err := c.do(ctx, http.MethodGet, c.transferURL+"/transaction?"+q.Encode(), token, nil)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) && rej.Status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	tx := gjson.GetBytes(body, "transaction")
	if !tx.Exists() {
		return nil, ErrNotFound
	}
	return &Transaction{
		ID:         tx.Get("id").String(),
		Kind:       tx.Get("kind").String(),
		Status:     tx.Get("status").String(),
		ExternalID: tx.Get("external_transaction_id").String(),
		AmountIn:   parseAmount(tx.Get("amount_in")),
		AmountOut:  parseAmount(tx.Get("amount_out")),
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, u, token string, form url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	body, err := netx.ReadBody(resp)
	if err == nil {
		return body, nil
	}

	var se *netx.StatusError
	if !errors.As(err, &se) {
		return nil, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	switch {
	case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
		if gjson.GetBytes(se.Body, "type").String() == "non_interactive_customer_info_needed" {
			return nil, &Rejection{Status: se.Code, Message: "customer info needed"}
		}
		return nil, ErrUnauthorized
	case se.Code >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrOutcomeUnknown, se.Code)
	default:
		msg := gjson.GetBytes(se.Body, "error").String()
		if msg == "" {
			msg = http.StatusText(se.Code)
		}
		return nil, &Rejection{Status: se.Code, Message: msg}
	}
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func parseAmount(r gjson.Result) decimal.Decimal {
	d, err := decimal.NewFromString(r.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
