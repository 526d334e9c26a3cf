// Package settlement drives settlement intents across the internal ledger
// and the external network and anchor.
//
// Every intent follows
//
//	created -> external-pending -> external-settled -> ledger-applied
//	                            \-> external-failed -> aborted
//
// Status changes are compare-and-set on the current status. Exactly one
// value-moving external call is made per intent and the ledger is only
// touched after the external side settled, through idempotent deltas keyed
// by the intent id.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/anchor"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/network"
	"github.com/afriswift/settlement/internal/server/rates"
	"github.com/afriswift/settlement/internal/server/repositories/intents"
	"github.com/afriswift/settlement/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the internal side the orchestrator gates against and applies to.
type Ledger interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*models.Account, error)
	ApplyBalanceDelta(ctx context.Context, accountID, asset string, delta decimal.Decimal, key string) (decimal.Decimal, error)
	Balance(ctx context.Context, accountID, asset string) (decimal.Decimal, error)
	HasTrustline(ctx context.Context, accountID, asset, issuer string) (bool, error)
	IsEligible(a *models.Account) bool
}

// Signers unseals the network signing key of an account.
type Signers interface {
	Signer(account *models.Account) (*network.KeyPair, error)
}

// Receipts archives a settled intent. Failures are logged only.
type Receipts interface {
	Archive(ctx context.Context, in *models.Intent) error
}

// Observer receives settlement events for metrics.
type Observer interface {
	IntentTransition(kind models.IntentKind, to models.IntentStatus)
	GatingRejected(kind models.IntentKind)
	ExternalCall(target, outcome string)
	LedgerRetry()
}

type nopObserver struct{}

func (nopObserver) IntentTransition(models.IntentKind, models.IntentStatus) {}
func (nopObserver) GatingRejected(models.IntentKind)                        {}
func (nopObserver) ExternalCall(string, string)                             {}
func (nopObserver) LedgerRetry()                                            {}

// Config holds the settlement parameters.
type Config struct {
	Asset network.Asset
	// DepositCurrency is the fiat currency deposits and withdrawals are
	// quoted in when the request names none.
	DepositCurrency string
	// CashOut maps an upper-cased recipient country to the currency a p2p
	// transfer is converted to on arrival. Countries not listed keep the
	// settled asset.
	CashOut map[string]string

	TransferValidity  time.Duration
	LedgerRetryWindow time.Duration
	ReconcileGrace    time.Duration
	ReconcileBatch    int
}

func (c *Config) setDefaults() {
	if c.DepositCurrency == "" {
		c.DepositCurrency = common.CurrencyXOF
	}
	if c.CashOut == nil {
		c.CashOut = map[string]string{"GH": common.CurrencyGHS, "GHANA": common.CurrencyGHS}
	}
	if c.TransferValidity <= 0 {
		c.TransferValidity = 30 * time.Second
	}
	if c.LedgerRetryWindow <= 0 {
		c.LedgerRetryWindow = 5 * time.Second
	}
	if c.ReconcileGrace <= 0 {
		c.ReconcileGrace = time.Minute
	}
	if c.ReconcileBatch <= 0 {
		c.ReconcileBatch = 100
	}
}

// Orchestrator runs settlement intents. It is safe for concurrent use; all
// state it keeps between calls lives in the database.
type Orchestrator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      Ledger
	network     network.Client
	anchor      anchor.Client
	tokens      anchor.TokenSource
	rates       *rates.Table
	signers     Signers
	receipts    Receipts
	observer    Observer
	logger      logging.Logger
	cfg         Config
	now         func() time.Time
}

type Option func(*Orchestrator)

func WithReceipts(r Receipts) Option { return func(o *Orchestrator) { o.receipts = r } }

func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.observer = obs } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func NewOrchestrator(
	db *sql.DB,
	m repomanager.RepositoryManager,
	ledger Ledger,
	net network.Client,
	anc anchor.Client,
	tokens anchor.TokenSource,
	table *rates.Table,
	signers Signers,
	logger logging.Logger,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	cfg.setDefaults()
	o := &Orchestrator{
		db:          db,
		repomanager: m,
		ledger:      ledger,
		network:     net,
		anchor:      anc,
		tokens:      tokens,
		rates:       table,
		signers:     signers,
		observer:    nopObserver{},
		logger:      logger.With("module", "settlement"),
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type DepositRequest struct {
	AccountID      string
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
}

type TransferRequest struct {
	AccountID       string
	IdempotencyKey  string
	RecipientNumber string
	Amount          decimal.Decimal
	Currency        string
}

type WithdrawRequest struct {
	AccountID      string
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
}

// Deposit credits the settlement asset bought with fiat through the anchor.
func (o *Orchestrator) Deposit(ctx context.Context, req DepositRequest) (*models.Intent, error) {
	in := &models.Intent{
		IdempotencyKey:    req.IdempotencyKey,
		Kind:              models.KindDeposit,
		SourceAccountID:   req.AccountID,
		RequestedAmount:   req.Amount,
		RequestedCurrency: o.currencyOr(req.Currency, o.cfg.DepositCurrency),
		AssetCode:         o.cfg.Asset.Code,
	}
	return o.submit(ctx, in)
}

// Transfer moves the settlement asset to another internal account.
func (o *Orchestrator) Transfer(ctx context.Context, req TransferRequest) (*models.Intent, error) {
	in := &models.Intent{
		IdempotencyKey:       req.IdempotencyKey,
		Kind:                 models.KindTransfer,
		SourceAccountID:      req.AccountID,
		DestinationAccountID: req.RecipientNumber,
		RequestedAmount:      req.Amount,
		RequestedCurrency:    o.currencyOr(req.Currency, o.cfg.Asset.Code),
		AssetCode:            o.cfg.Asset.Code,
	}
	return o.submit(ctx, in)
}

// Withdraw pays the settlement asset out to the account's bank details.
func (o *Orchestrator) Withdraw(ctx context.Context, req WithdrawRequest) (*models.Intent, error) {
	in := &models.Intent{
		IdempotencyKey:    req.IdempotencyKey,
		Kind:              models.KindWithdrawal,
		SourceAccountID:   req.AccountID,
		RequestedAmount:   req.Amount,
		RequestedCurrency: o.currencyOr(req.Currency, o.cfg.DepositCurrency),
		AssetCode:         o.cfg.Asset.Code,
	}
	return o.submit(ctx, in)
}

// GetIntent returns an intent the account is a party to.
func (o *Orchestrator) GetIntent(ctx context.Context, accountID, id string) (*models.Intent, error) {
	in, err := o.intents().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.SourceAccountID != accountID && in.DestinationAccountID != accountID {
		return nil, common.ErrorNotFound
	}
	return in, nil
}

func (o *Orchestrator) ListIntents(ctx context.Context, accountID string, limit int) ([]*models.Intent, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return o.intents().ListForAccount(ctx, accountID, limit)
}

// submit resumes the intent stored under the request's key, or gates,
// persists and runs a new one.
func (o *Orchestrator) submit(ctx context.Context, in *models.Intent) (*models.Intent, error) {
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = uuid.NewString()
	}
	in.Status = models.IntentCreated
	req := *in

	existing, err := o.intents().GetByKey(ctx, in.IdempotencyKey)
	switch {
	case err == nil:
		return o.resume(ctx, existing, &req)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, &Failure{Class: ClassLedger, Err: err}
	}

	if err := o.resolve(ctx, in); err != nil {
		o.observer.GatingRejected(in.Kind)
		return nil, err
	}

	created, err := o.intents().Create(ctx, in)
	if err != nil {
		return nil, &Failure{Class: ClassLedger, Err: err}
	}
	if !created {
		// lost a race with a concurrent request carrying the same key
		existing, err := o.intents().GetByKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, &Failure{Class: ClassLedger, Err: err}
		}
		return o.resume(ctx, existing, &req)
	}

	o.observer.IntentTransition(in.Kind, in.Status)
	o.logger.Info(ctx, "intent created", "intent_id", in.ID, "kind", in.Kind, "key", in.IdempotencyKey,
		"amount", in.ResolvedAmount.String(), "asset", in.AssetCode)
	return o.advance(ctx, in)
}

// resume continues an intent found under a repeated idempotency key. The
// repeated request, as received and before any resolution, must describe
// the same operation.
func (o *Orchestrator) resume(ctx context.Context, existing, req *models.Intent) (*models.Intent, error) {
	if existing.Kind != req.Kind || existing.SourceAccountID != req.SourceAccountID ||
		!existing.RequestedAmount.Equal(req.RequestedAmount) ||
		!strings.EqualFold(existing.RequestedCurrency, req.RequestedCurrency) {
		return nil, common.ErrIdempotencyConflict
	}
	if req.Kind == models.KindTransfer {
		// the request names the recipient by account number, the intent by id
		recipient, err := o.ledger.GetAccountByNumber(ctx, req.DestinationAccountID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return nil, common.ErrIdempotencyConflict
		case err != nil:
			return nil, &Failure{Class: ClassLedger, Err: err}
		case recipient.ID != existing.DestinationAccountID:
			return nil, common.ErrIdempotencyConflict
		}
	}
	o.logger.Info(ctx, "resuming intent", "intent_id", existing.ID, "status", existing.Status)

	// nothing was sent yet, so the gate decides again; only a gating verdict
	// aborts, anything else leaves the intent for the next attempt
	if existing.Status == models.IntentCreated && existing.Kind != models.KindConversion {
		if err := o.gate(ctx, existing); err != nil {
			var f *Failure
			if errors.As(err, &f) && f.Class == ClassGating {
				return o.abortCreated(ctx, existing, err)
			}
			return nil, err
		}
	}
	return o.advance(ctx, existing)
}

// advance moves in forward until it reaches a terminal status or has to wait
// on the external side.
func (o *Orchestrator) advance(ctx context.Context, in *models.Intent) (*models.Intent, error) {
	queried, applied := false, false
	for step := 0; step < 8; step++ {
		var err error
		switch in.Status {
		case models.IntentCreated:
			if in.Kind == models.KindConversion {
				err = o.settleConversion(ctx, in)
			} else {
				err = o.execute(ctx, in)
			}
		case models.IntentExternalPending:
			if queried {
				return in, nil
			}
			queried = true
			err = o.resolvePending(ctx, in)
		case models.IntentExternalSettled:
			err = o.applyLedger(ctx, in)
			if err == nil {
				applied = true
			} else if !errors.Is(err, intents.ErrStaleTransition) {
				o.logger.Warn(ctx, "ledger application deferred", "intent_id", in.ID, "error", err)
				return in, nil
			}
		case models.IntentExternalFailed:
			err = o.transition(ctx, in, models.IntentAborted, models.IntentUpdate{})
		case models.IntentLedgerApplied:
			o.afterApplied(ctx, in, applied)
			return in, nil
		case models.IntentAborted:
			return in, failureFromReason(in.FailureReason)
		}

		if err != nil {
			if errors.Is(err, intents.ErrStaleTransition) {
				continue
			}
			if errors.Is(err, errParentNotApplied) {
				return in, nil
			}
			return in, err
		}
	}
	return in, nil
}

// transition moves in from its current status to to. On a lost race the
// stored intent is reloaded into in and ErrStaleTransition returned.
func (o *Orchestrator) transition(ctx context.Context, in *models.Intent, to models.IntentStatus, upd models.IntentUpdate) error {
	from := in.Status
	repo := o.intents()
	if err := repo.Transition(ctx, in.ID, from, to, upd); err != nil {
		if errors.Is(err, intents.ErrStaleTransition) {
			if cur, gerr := repo.GetByID(ctx, in.ID); gerr == nil {
				*in = *cur
			}
		}
		return err
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
	in.UpdatedAt = o.now()

	o.observer.IntentTransition(in.Kind, to)
	o.logger.Info(ctx, "intent transition", "intent_id", in.ID, "kind", in.Kind, "from", from, "to", to)
	return nil
}

func (o *Orchestrator) intents() intents.Repository {
	return o.repomanager.Intents(o.db)
}

func (o *Orchestrator) currencyOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return strings.ToUpper(code)
}

func (o *Orchestrator) convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	v, err := o.rates.Convert(amount, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve rate: %w", err)
	}
	return v, nil
}
