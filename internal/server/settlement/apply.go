package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

var errParentNotApplied = errors.New("parent intent not yet applied to the ledger")

const conversionSuffix = ":conversion"

type delta struct {
	account string
	asset   string
	amount  decimal.Decimal
}

// deltas lists the balance changes of a settled intent.
//
// A conversion with a destination is a cash-out inside that account: the
// asset is debited and the payout currency credited. A conversion without a
// destination only records the payout of a withdrawal whose asset already
// left the ledger.
func (o *Orchestrator) deltas(in *models.Intent) []delta {
	switch in.Kind {
	case models.KindDeposit:
		return []delta{{in.SourceAccountID, in.AssetCode, in.ResolvedAmount}}
	case models.KindTransfer:
		return []delta{
			{in.SourceAccountID, in.AssetCode, in.ResolvedAmount.Neg()},
			{in.DestinationAccountID, in.AssetCode, in.ResolvedAmount},
		}
	case models.KindWithdrawal:
		return []delta{{in.SourceAccountID, in.AssetCode, in.ResolvedAmount.Neg()}}
	case models.KindConversion:
		if in.DestinationAccountID == "" {
			return nil
		}
		return []delta{
			{in.DestinationAccountID, in.AssetCode, in.ResolvedAmount.Neg()},
			{in.DestinationAccountID, in.PayoutCurrency, in.PayoutAmount},
		}
	}
	return nil
}

// applyLedger mirrors a settled intent into the ledger. Each delta is keyed
// by the intent id, so replays after a partial failure apply nothing twice.
// Transient errors are retried with backoff for the configured window; the
// reconciler takes over after that.
func (o *Orchestrator) applyLedger(ctx context.Context, in *models.Intent) error {
	if in.Kind == models.KindTransfer || in.Kind == models.KindWithdrawal {
		if err := o.ensureConversion(ctx, in); err != nil {
			o.logger.Error(ctx, "conversion intent not recorded", "intent_id", in.ID, "error", err)
		}
	}

	backoff := retry.WithMaxDuration(o.cfg.LedgerRetryWindow, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		for _, d := range o.deltas(in) {
			if _, err := o.ledger.ApplyBalanceDelta(ctx, d.account, d.asset, d.amount, in.ID); err != nil {
				if errors.Is(err, common.ErrInsufficientBalance) {
					return err
				}
				o.observer.LedgerRetry()
				return retry.RetryableError(err)
			}
		}
		return nil
	})
	if err != nil {
		return &Failure{Class: ClassLedger, Err: err}
	}
	return o.transition(ctx, in, models.IntentLedgerApplied, models.IntentUpdate{})
}

// ensureConversion records the conversion chained after a p2p transfer or a
// withdrawal. It is created in the created status and only advanced once its
// parent is applied.
func (o *Orchestrator) ensureConversion(ctx context.Context, primary *models.Intent) error {
	conv := &models.Intent{
		IdempotencyKey:    primary.IdempotencyKey + conversionSuffix,
		Kind:              models.KindConversion,
		RequestedAmount:   primary.ResolvedAmount,
		RequestedCurrency: primary.AssetCode,
		AssetCode:         primary.AssetCode,
		ResolvedAmount:    primary.ResolvedAmount,
		Status:            models.IntentCreated,
		ParentIntentID:    primary.ID,
	}

	switch primary.Kind {
	case models.KindTransfer:
		recipient, err := o.ledger.GetAccount(ctx, primary.DestinationAccountID)
		if err != nil {
			return err
		}
		currency, ok := o.cfg.CashOut[strings.ToUpper(strings.TrimSpace(recipient.Country))]
		if !ok {
			return nil
		}
		conv.SourceAccountID = recipient.ID
		conv.DestinationAccountID = recipient.ID
		conv.PayoutCurrency = currency
	case models.KindWithdrawal:
		conv.SourceAccountID = primary.SourceAccountID
		conv.PayoutCurrency = primary.RequestedCurrency
	default:
		return nil
	}

	payout, err := o.convert(primary.ResolvedAmount, primary.AssetCode, conv.PayoutCurrency)
	if err != nil {
		return err
	}
	conv.PayoutAmount = payout

	created, err := o.intents().Create(ctx, conv)
	if err != nil {
		return err
	}
	if created {
		o.observer.IntentTransition(conv.Kind, conv.Status)
		o.logger.Info(ctx, "conversion recorded", "intent_id", conv.ID, "parent_id", primary.ID,
			"payout", conv.PayoutAmount.String(), "currency", conv.PayoutCurrency)
	}
	return nil
}

// settleConversion has no external side: once the parent is applied it is
// settled by definition.
func (o *Orchestrator) settleConversion(ctx context.Context, conv *models.Intent) error {
	parent, err := o.intents().GetByID(ctx, conv.ParentIntentID)
	if err != nil {
		return err
	}
	if parent.Status != models.IntentLedgerApplied {
		return errParentNotApplied
	}
	return o.transition(ctx, conv, models.IntentExternalSettled, models.IntentUpdate{ExternalRef: parent.ExternalRef})
}

// afterApplied archives the receipt of an intent applied in this call and
// advances its chained conversion. Failures here never affect the intent.
func (o *Orchestrator) afterApplied(ctx context.Context, in *models.Intent, fresh bool) {
	if fresh && o.receipts != nil {
		if err := o.receipts.Archive(ctx, in); err != nil {
			o.logger.Warn(ctx, "receipt not archived", "intent_id", in.ID, "error", err)
		}
	}

	if in.Kind != models.KindTransfer && in.Kind != models.KindWithdrawal {
		return
	}
	conv, err := o.intents().GetByKey(ctx, in.IdempotencyKey+conversionSuffix)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			o.logger.Error(ctx, "conversion lookup failed", "intent_id", in.ID, "error", err)
		}
		return
	}
	if conv.Status.Terminal() {
		return
	}
	if _, err := o.advance(ctx, conv); err != nil {
		o.logger.Error(ctx, "conversion failed, left for reconciliation", "intent_id", conv.ID, "parent_id", in.ID, "error", err)
	}
}
