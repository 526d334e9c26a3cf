package network

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/afriswift/settlement/internal/netx"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// HorizonClient implements Client against a Horizon-style REST gateway.
type HorizonClient struct {
	baseURL      string
	friendbotURL string
	http         *http.Client
	now          func() time.Time
}

func NewHorizonClient(baseURL, friendbotURL string, timeout time.Duration) *HorizonClient {
	return &HorizonClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		friendbotURL: friendbotURL,
		http:         &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

func (c *HorizonClient) LoadAccount(ctx context.Context, publicID string) (*OnChainAccount, error) {
	body, err := c.get(ctx, c.baseURL+"/accounts/"+url.PathEscape(publicID))
	if err != nil {
		if netx.IsStatus(err, http.StatusNotFound) {
			return nil, ErrAccountNotReady
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	doc := gjson.ParseBytes(body)
	seq, err := strconv.ParseInt(doc.Get("sequence").String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("load account: bad sequence: %w", err)
	}

	acc := &OnChainAccount{ID: doc.Get("id").String(), Sequence: seq, Balances: map[string]decimal.Decimal{}}
	var parseErr error
	doc.Get("balances").ForEach(func(_, b gjson.Result) bool {
		amount, err := decimal.NewFromString(b.Get("balance").String())
		if err != nil {
			parseErr = err
			return false
		}
		asset := Asset{Code: "XLM"}
		if b.Get("asset_type").String() != "native" {
			asset = Asset{Code: b.Get("asset_code").String(), Issuer: b.Get("asset_issuer").String()}
		}
		acc.Balances[asset.String()] = amount
		return true
	})
	if parseErr != nil {
		return nil, fmt.Errorf("load account: bad balance: %w", parseErr)
	}
	return acc, nil
}

type operation struct {
	Type        string `json:"type"`
	Destination string `json:"destination,omitempty"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

type envelope struct {
	Source     string      `json:"source_account"`
	Sequence   string      `json:"sequence"`
	Memo       string      `json:"memo,omitempty"`
	MaxTime    int64       `json:"max_time,omitempty"`
	Operations []operation `json:"operations"`
}

type signedEnvelope struct {
	Tx        json.RawMessage `json:"tx"`
	Signature string          `json:"signature"`
}

func (c *HorizonClient) SubmitTransfer(ctx context.Context, t Transfer) (string, error) {
	if !t.Amount.IsPositive() {
		return "", &Failure{Reason: ReasonMalformed, Codes: []string{"op_malformed"}}
	}
	source, err := c.LoadAccount(ctx, t.Source.Address())
	if err != nil {
		return "", err
	}

	env := envelope{
		Source:   source.ID,
		Sequence: strconv.FormatInt(source.Sequence+1, 10),
		Memo:     t.Memo,
		Operations: []operation{{
			Type:        "payment",
			Destination: t.Destination,
			AssetCode:   t.Asset.Code,
			AssetIssuer: t.Asset.Issuer,
			Amount:      t.Amount.StringFixed(7),
		}},
	}
	if !t.ValidUntil.IsZero() {
		env.MaxTime = t.ValidUntil.Unix()
	}
	return c.submit(ctx, t.Source, env)
}

func (c *HorizonClient) EstablishTrustline(ctx context.Context, signer *KeyPair, asset Asset) error {
	acc, err := c.LoadAccount(ctx, signer.Address())
	if err != nil {
		return err
	}
	if acc.HasLine(asset) {
		return nil
	}

	env := envelope{
		Source:   acc.ID,
		Sequence: strconv.FormatInt(acc.Sequence+1, 10),
		Operations: []operation{{
			Type:        "change_trust",
			AssetCode:   asset.Code,
			AssetIssuer: asset.Issuer,
		}},
	}
	_, err = c.submit(ctx, signer, env)
	if err == nil {
		return nil
	}

	// Some gateways reject a change_trust for a line that already exists.
	// Trust the account state over the error code.
	if again, lerr := c.LoadAccount(ctx, signer.Address()); lerr == nil && again.HasLine(asset) {
		return nil
	}
	return err
}

func (c *HorizonClient) submit(ctx context.Context, signer *KeyPair, env envelope) (string, error) {
	tx, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	signed, err := json.Marshal(signedEnvelope{Tx: tx, Signature: base64.StdEncoding.EncodeToString(signer.Sign(tx))})
	if err != nil {
		return "", err
	}

	form := url.Values{"tx": {base64.StdEncoding.EncodeToString(signed)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	body, err := netx.ReadBody(resp)
	if err == nil {
		return gjson.GetBytes(body, "hash").String(), nil
	}

	var se *netx.StatusError
	if !errors.As(err, &se) {
		return "", fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	switch {
	case se.Code == http.StatusBadRequest:
		return "", classify(gjson.GetBytes(body, "extras.result_codes"))
	case se.Code == http.StatusGatewayTimeout || se.Code >= 500:
		return "", fmt.Errorf("%w: status %d", ErrOutcomeUnknown, se.Code)
	default:
		return "", &Failure{Reason: ReasonRejected, Codes: []string{strconv.Itoa(se.Code)}}
	}
}

var reasonByCode = map[string]FailureReason{
	"op_underfunded":            ReasonInsufficientFunds,
	"tx_insufficient_balance":   ReasonInsufficientFunds,
	"op_low_reserve":            ReasonInsufficientFunds,
	"tx_bad_seq":                ReasonSequenceConflict,
	"op_no_trust":               ReasonNoTrust,
	"op_not_authorized":         ReasonNoTrust,
	"op_src_no_trust":           ReasonNoTrust,
	"op_src_not_authorized":     ReasonNoTrust,
	"op_no_destination":         ReasonNoDestination,
	"op_malformed":              ReasonMalformed,
	"tx_malformed":              ReasonMalformed,
	"op_change_trust_malformed": ReasonMalformed,
	"tx_too_late":               ReasonExpired,
}

func classify(codes gjson.Result) *Failure {
	f := &Failure{Reason: ReasonRejected}
	if tx := codes.Get("transaction").String(); tx != "" {
		f.Codes = append(f.Codes, tx)
	}
	codes.Get("operations").ForEach(func(_, op gjson.Result) bool {
		f.Codes = append(f.Codes, op.String())
		return true
	})

	for _, code := range f.Codes {
		if r, ok := reasonByCode[code]; ok {
			f.Reason = r
			break
		}
	}
	return f
}

const (
	transferPageSize = 200
	maxTransferPages = 25
)

// FindTransfer walks source's transactions newest first, following the
// paging links, until it meets a successful one carrying memo or records
// created before since. Running out of pages before since was reached
// yields ErrLookupIncomplete rather than "not found".
func (c *HorizonClient) FindTransfer(ctx context.Context, source, memo string, since time.Time) (string, bool, error) {
	next := c.baseURL + "/accounts/" + url.PathEscape(source) + "/transactions?order=desc&limit=" + strconv.Itoa(transferPageSize)

	for page := 0; page < maxTransferPages; page++ {
		body, err := c.get(ctx, next)
		if err != nil {
			if page == 0 && netx.IsStatus(err, http.StatusNotFound) {
				return "", false, nil
			}
			return "", false, fmt.Errorf("find transfer: %w", err)
		}

		records := gjson.GetBytes(body, "_embedded.records").Array()
		if len(records) == 0 {
			return "", false, nil
		}
		for _, rec := range records {
			if rec.Get("memo").String() == memo && rec.Get("successful").Bool() {
				return rec.Get("hash").String(), true, nil
			}
			created, err := time.Parse(time.RFC3339, rec.Get("created_at").String())
			if err == nil && created.Before(since) {
				return "", false, nil
			}
		}

		link := gjson.GetBytes(body, "_links.next.href").String()
		if link == "" {
			return "", false, nil
		}
		if strings.HasPrefix(link, "/") {
			link = c.baseURL + link
		}
		if link == next {
			break
		}
		next = link
	}
	return "", false, fmt.Errorf("%w: source %s", ErrLookupIncomplete, source)
}

// Fund asks the testnet friendbot to create and fund publicID. An account
// that already exists counts as funded.
func (c *HorizonClient) Fund(ctx context.Context, publicID string) error {
	if c.friendbotURL == "" {
		return nil
	}
	_, err := c.get(ctx, c.friendbotURL+"?addr="+url.QueryEscape(publicID))
	if err == nil {
		return nil
	}
	var se *netx.StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest &&
		strings.Contains(string(se.Body), "createAccountAlreadyExist") {
		return nil
	}
	return fmt.Errorf("fund account: %w", err)
}

func (c *HorizonClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return netx.ReadBody(resp)
}
