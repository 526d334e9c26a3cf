package settlement

import (
	"context"
	"errors"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/server/models"
)

// resolve fills in the resolved amount and the recipient of a new intent and
// runs the gate. Nothing is persisted on failure.
func (o *Orchestrator) resolve(ctx context.Context, in *models.Intent) error {
	if !in.RequestedAmount.IsPositive() {
		return gatingFailure(ErrInvalidAmount)
	}
	resolved, err := o.convert(in.RequestedAmount, in.RequestedCurrency, in.AssetCode)
	if err != nil {
		return gatingFailure(err)
	}
	in.ResolvedAmount = resolved

	if in.Kind == models.KindTransfer {
		recipient, err := o.ledger.GetAccountByNumber(ctx, in.DestinationAccountID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return gatingFailure(ErrRecipientUnavailable)
			}
			return &Failure{Class: ClassLedger, Err: err}
		}
		in.DestinationAccountID = recipient.ID
	}

	return o.gate(ctx, in)
}

// gate checks everything that must hold before the external call. It only
// reads.
func (o *Orchestrator) gate(ctx context.Context, in *models.Intent) error {
	if !in.ResolvedAmount.IsPositive() {
		return gatingFailure(ErrInvalidAmount)
	}

	source, err := o.ledger.GetAccount(ctx, in.SourceAccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return gatingFailure(ErrNotEligible)
		}
		return &Failure{Class: ClassLedger, Err: err}
	}
	if !o.ledger.IsEligible(source) {
		return gatingFailure(ErrNotEligible)
	}

	switch in.Kind {
	case models.KindDeposit:
		ok, err := o.ledger.HasTrustline(ctx, source.ID, o.cfg.Asset.Code, o.cfg.Asset.Issuer)
		if err != nil {
			return &Failure{Class: ClassLedger, Err: err}
		}
		if !ok {
			return gatingFailure(ErrMissingTrustline)
		}

	case models.KindTransfer:
		if in.DestinationAccountID == source.ID {
			return gatingFailure(ErrSelfTransfer)
		}
		recipient, err := o.ledger.GetAccount(ctx, in.DestinationAccountID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return gatingFailure(ErrRecipientUnavailable)
			}
			return &Failure{Class: ClassLedger, Err: err}
		}
		if recipient.Status != models.StatusActive {
			return gatingFailure(ErrRecipientUnavailable)
		}
		if err := o.gateBalance(ctx, in); err != nil {
			return err
		}

	case models.KindWithdrawal:
		if source.Bank == nil || source.Bank.AccountNumber == "" {
			return gatingFailure(ErrNoBankDetails)
		}
		if err := o.gateBalance(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) gateBalance(ctx context.Context, in *models.Intent) error {
	balance, err := o.ledger.Balance(ctx, in.SourceAccountID, in.AssetCode)
	if err != nil {
		return &Failure{Class: ClassLedger, Err: err}
	}
	if balance.LessThan(in.ResolvedAmount) {
		return gatingFailure(common.ErrInsufficientBalance)
	}
	return nil
}

// abortCreated aborts an intent that never reached the external side and
// returns the failure that caused it.
func (o *Orchestrator) abortCreated(ctx context.Context, in *models.Intent, cause error) (*models.Intent, error) {
	f, ok := cause.(*Failure)
	if !ok {
		f = &Failure{Class: ClassLedger, Err: cause}
	}
	if f.Reason == "" {
		f.Reason = f.Err.Error()
	}
	if err := o.transition(ctx, in, models.IntentAborted, models.IntentUpdate{FailureReason: encodeReason(f.Class, f.Reason)}); err != nil {
		return in, err
	}
	if f.Class == ClassGating {
		o.observer.GatingRejected(in.Kind)
	}
	return in, f
}
