package settlement

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/dbx"
	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/anchor"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/network"
	"github.com/afriswift/settlement/internal/server/rates"
	"github.com/afriswift/settlement/internal/server/repositories/accounts"
	"github.com/afriswift/settlement/internal/server/repositories/balances"
	"github.com/afriswift/settlement/internal/server/repositories/intents"
	"github.com/afriswift/settlement/internal/server/repositories/refreshtokens"
	"github.com/afriswift/settlement/internal/server/repositories/trustlines"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testAsset = network.Asset{Code: "SRT", Issuer: "GISSUER"}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// --- ledger ---

type applyCall struct {
	account, asset, key string
	delta               decimal.Decimal
}

type fakeLedger struct {
	mu         sync.Mutex
	accounts   map[string]*models.Account
	balances   map[string]decimal.Decimal
	applied    map[string]bool
	trustlines map[string]bool
	calls      []applyCall
	applyErr   error
	balanceErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts:   map[string]*models.Account{},
		balances:   map[string]decimal.Decimal{},
		applied:    map[string]bool{},
		trustlines: map[string]bool{},
	}
}

func (l *fakeLedger) addAccount(t *testing.T, number string, srt int64, mutate ...func(*models.Account)) *models.Account {
	t.Helper()
	kp, err := network.RandomKeyPair()
	require.NoError(t, err)
	a := &models.Account{
		ID:            uuid.NewString(),
		AccountNumber: number,
		PublicID:      kp.Address(),
		KYC:           models.KYCApproved,
		Status:        models.StatusActive,
		Country:       "SN",
	}
	for _, m := range mutate {
		m(a)
	}
	l.mu.Lock()
	l.accounts[a.ID] = a
	l.balances[a.ID+"|SRT"] = decimal.NewFromInt(srt)
	l.trustlines[a.ID] = true
	l.mu.Unlock()
	return a
}

func (l *fakeLedger) GetAccount(_ context.Context, id string) (*models.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[id]; ok {
		return a, nil
	}
	return nil, common.ErrorNotFound
}

func (l *fakeLedger) GetAccountByNumber(_ context.Context, number string) (*models.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts {
		if a.AccountNumber == number {
			return a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (l *fakeLedger) ApplyBalanceDelta(_ context.Context, accountID, asset string, delta decimal.Decimal, key string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applyErr != nil {
		return decimal.Zero, l.applyErr
	}
	l.calls = append(l.calls, applyCall{accountID, asset, key, delta})
	bk := accountID + "|" + asset
	if l.applied[bk+"|"+key] {
		return l.balances[bk], nil
	}
	next := l.balances[bk].Add(delta)
	if next.IsNegative() {
		return decimal.Zero, common.ErrInsufficientBalance
	}
	l.applied[bk+"|"+key] = true
	l.balances[bk] = next
	return next, nil
}

func (l *fakeLedger) Balance(_ context.Context, accountID, asset string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balanceErr != nil {
		return decimal.Zero, l.balanceErr
	}
	return l.balances[accountID+"|"+asset], nil
}

func (l *fakeLedger) HasTrustline(_ context.Context, accountID, _, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trustlines[accountID], nil
}

func (l *fakeLedger) IsEligible(a *models.Account) bool { return a.Eligible() }

func (l *fakeLedger) balance(accountID, asset string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[accountID+"|"+asset]
}

func (l *fakeLedger) setApplyErr(err error) {
	l.mu.Lock()
	l.applyErr = err
	l.mu.Unlock()
}

func (l *fakeLedger) applyCalls() []applyCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]applyCall(nil), l.calls...)
}

// --- intents ---

type fakeIntents struct {
	mu    sync.Mutex
	byID  map[string]*models.Intent
	clock *clock
}

func (f *fakeIntents) Create(_ context.Context, in *models.Intent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.byID {
		if e.IdempotencyKey == in.IdempotencyKey {
			return false, nil
		}
	}
	in.ID = uuid.NewString()
	in.CreatedAt = f.clock.Now()
	in.UpdatedAt = in.CreatedAt
	cp := *in
	f.byID[in.ID] = &cp
	return true, nil
}

func (f *fakeIntents) GetByID(_ context.Context, id string) (*models.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.byID[id]; ok {
		cp := *in
		return &cp, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeIntents) GetByKey(_ context.Context, key string) (*models.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.byID {
		if in.IdempotencyKey == key {
			cp := *in
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeIntents) Transition(_ context.Context, id string, from, to models.IntentStatus, upd models.IntentUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.byID[id]
	if !ok || in.Status != from {
		return intents.ErrStaleTransition
	}
	in.Status = to
	if upd.ExternalRef != "" {
		in.ExternalRef = upd.ExternalRef
	}
	if upd.FailureReason != "" {
		in.FailureReason = upd.FailureReason
	}
	if upd.ExternalDestination != "" {
		in.ExternalDestination = upd.ExternalDestination
	}
	if upd.Memo != "" {
		in.Memo = upd.Memo
	}
	if upd.SubmittedAt != nil {
		in.SubmittedAt = upd.SubmittedAt
	}
	in.UpdatedAt = f.clock.Now()
	return nil
}

func (f *fakeIntents) ListStale(_ context.Context, status models.IntentStatus, before time.Time, limit int) ([]*models.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Intent
	for _, in := range f.byID {
		if in.Status == status && lastSeen(in).Before(before) {
			cp := *in
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lastSeen(out[i]).Before(lastSeen(out[j])) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func lastSeen(in *models.Intent) time.Time {
	if in.LastCheckedAt != nil && in.LastCheckedAt.After(in.UpdatedAt) {
		return *in.LastCheckedAt
	}
	return in.UpdatedAt
}

func (f *fakeIntents) Touch(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.byID[id]; ok {
		now := f.clock.Now()
		in.LastCheckedAt = &now
	}
	return nil
}

func (f *fakeIntents) ListForAccount(_ context.Context, accountID string, limit int) ([]*models.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Intent
	for _, in := range f.byID {
		if in.SourceAccountID == accountID || in.DestinationAccountID == accountID {
			cp := *in
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeIntents) all() []*models.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Intent
	for _, in := range f.byID {
		cp := *in
		out = append(out, &cp)
	}
	return out
}

type fakeRepoManager struct{ intents *fakeIntents }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository           { return nil }
func (m *fakeRepoManager) Balances(dbx.DBTX) balances.Repository           { return nil }
func (m *fakeRepoManager) Trustlines(dbx.DBTX) trustlines.Repository       { return nil }
func (m *fakeRepoManager) Intents(dbx.DBTX) intents.Repository             { return m.intents }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return nil }

// --- network ---

type fakeNetwork struct {
	mu        sync.Mutex
	submitted []network.Transfer
	submitErr error
	landed    map[string]string // memo -> ref, what FindTransfer sees
	// landOnSubmit records the transfer as landed even when submitErr is set,
	// modelling a reply lost after the network applied it.
	landOnSubmit bool
	// onChain overrides the settlement asset balance LoadAccount reports
	// for a public id; unlisted accounts hold plenty.
	onChain map[string]decimal.Decimal
	loadErr error
	findErr error
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{landed: map[string]string{}, onChain: map[string]decimal.Decimal{}}
}

func (n *fakeNetwork) LoadAccount(_ context.Context, publicID string) (*network.OnChainAccount, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.loadErr != nil {
		return nil, n.loadErr
	}
	balance, ok := n.onChain[publicID]
	if !ok {
		balance = decimal.NewFromInt(1_000_000)
	}
	return &network.OnChainAccount{
		ID:       publicID,
		Balances: map[string]decimal.Decimal{testAsset.String(): balance},
	}, nil
}

func (n *fakeNetwork) setOnChain(publicID string, amount decimal.Decimal) {
	n.mu.Lock()
	n.onChain[publicID] = amount
	n.mu.Unlock()
}

func (n *fakeNetwork) land(memo, ref string) {
	n.mu.Lock()
	n.landed[memo] = ref
	n.mu.Unlock()
}

func (n *fakeNetwork) SubmitTransfer(_ context.Context, t network.Transfer) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitted = append(n.submitted, t)
	ref := "tx-" + t.Memo
	if n.submitErr == nil || n.landOnSubmit {
		n.landed[t.Memo] = ref
	}
	if n.submitErr != nil {
		return "", n.submitErr
	}
	return ref, nil
}

func (n *fakeNetwork) FindTransfer(_ context.Context, _ string, memo string, _ time.Time) (string, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.findErr != nil {
		return "", false, n.findErr
	}
	ref, ok := n.landed[memo]
	return ref, ok, nil
}

func (n *fakeNetwork) EstablishTrustline(context.Context, *network.KeyPair, network.Asset) error {
	return nil
}

func (n *fakeNetwork) Fund(context.Context, string) error { return nil }

func (n *fakeNetwork) submissions() []network.Transfer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]network.Transfer(nil), n.submitted...)
}

// --- anchor ---

type fakeAnchor struct {
	mu          sync.Mutex
	deposits    []anchor.DepositDetails
	withdrawals []anchor.WithdrawDetails
	depositErrs []error
	withdrawErr error
	found       map[string]*anchor.Transaction
}

func newFakeAnchor() *fakeAnchor { return &fakeAnchor{found: map[string]*anchor.Transaction{}} }

func (a *fakeAnchor) Authenticate(context.Context) (string, error) { return "tok", nil }

func (a *fakeAnchor) InitiateDeposit(_ context.Context, _, _, _ string, d anchor.DepositDetails) (*anchor.DepositAck, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deposits = append(a.deposits, d)
	if len(a.depositErrs) > 0 {
		err := a.depositErrs[0]
		a.depositErrs = a.depositErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &anchor.DepositAck{ID: "dep-" + d.ExternalID}, nil
}

func (a *fakeAnchor) InitiateWithdrawal(_ context.Context, _, _, _ string, d anchor.WithdrawDetails) (*anchor.WithdrawAck, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.withdrawals = append(a.withdrawals, d)
	if a.withdrawErr != nil {
		return nil, a.withdrawErr
	}
	return &anchor.WithdrawAck{ID: "wd-1", AccountID: "GANCHORRECEIVE", Memo: "wd-memo-1", MemoType: "text"}, nil
}

func (a *fakeAnchor) FindTransaction(_ context.Context, _, externalID string) (*anchor.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tx, ok := a.found[externalID]; ok {
		return tx, nil
	}
	return nil, anchor.ErrNotFound
}

type staticTokens struct {
	mu          sync.Mutex
	invalidated int
}

func (s *staticTokens) Token(context.Context) (string, error) { return "tok", nil }

func (s *staticTokens) Invalidate(string) {
	s.mu.Lock()
	s.invalidated++
	s.mu.Unlock()
}

type randomSigners struct{}

func (randomSigners) Signer(*models.Account) (*network.KeyPair, error) {
	return network.RandomKeyPair()
}

type fakeReceipts struct {
	mu       sync.Mutex
	archived []string
}

func (r *fakeReceipts) Archive(_ context.Context, in *models.Intent) error {
	r.mu.Lock()
	r.archived = append(r.archived, in.ID)
	r.mu.Unlock()
	return nil
}

// --- harness ---

type harness struct {
	o        *Orchestrator
	ledger   *fakeLedger
	intents  *fakeIntents
	network  *fakeNetwork
	anchor   *fakeAnchor
	tokens   *staticTokens
	receipts *fakeReceipts
	clock    *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		ledger:   newFakeLedger(),
		intents:  &fakeIntents{byID: map[string]*models.Intent{}, clock: clk},
		network:  newFakeNetwork(),
		anchor:   newFakeAnchor(),
		tokens:   &staticTokens{},
		receipts: &fakeReceipts{},
		clock:    clk,
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.o = NewOrchestrator(nil, &fakeRepoManager{intents: h.intents}, h.ledger, h.network, h.anchor, h.tokens,
		rates.Default(), randomSigners{}, logger,
		Config{
			Asset:             testAsset,
			TransferValidity:  30 * time.Second,
			LedgerRetryWindow: 20 * time.Millisecond,
			ReconcileGrace:    time.Minute,
		},
		WithClock(clk.Now), WithReceipts(h.receipts))
	return h
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
