package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afriswift/settlement/internal/server/anchor"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/network"
)

const (
	targetAnchor  = "anchor"
	targetNetwork = "network"

	depositMethod  = "mobile_money"
	withdrawMethod = "bank_account"
)

// execute issues the single value-moving external call of in. The intent is
// moved to external-pending before the call goes out.
func (o *Orchestrator) execute(ctx context.Context, in *models.Intent) error {
	switch in.Kind {
	case models.KindDeposit:
		return o.executeDeposit(ctx, in)
	case models.KindTransfer, models.KindWithdrawal:
		return o.executeTransfer(ctx, in)
	}
	return fmt.Errorf("unknown intent kind %q", in.Kind)
}

func (o *Orchestrator) executeDeposit(ctx context.Context, in *models.Intent) error {
	source, err := o.ledger.GetAccount(ctx, in.SourceAccountID)
	if err != nil {
		return err
	}

	now := o.now()
	memo := network.MemoFor(in.IdempotencyKey)
	if err := o.transition(ctx, in, models.IntentExternalPending, models.IntentUpdate{Memo: memo, SubmittedAt: &now}); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	ack, err := anchor.Authorized(ctx, o.tokens, func(ctx context.Context, token string) (*anchor.DepositAck, error) {
		return o.anchor.InitiateDeposit(ctx, token, source.PublicID, in.AssetCode, anchor.DepositDetails{
			Amount:     in.ResolvedAmount,
			Type:       depositMethod,
			Memo:       memo,
			ExternalID: in.IdempotencyKey,
		})
	})
	ref := ""
	if ack != nil {
		ref = ack.ID
	}
	return o.settleExternal(ctx, in, targetAnchor, ref, err)
}

// executeTransfer covers p2p transfers and the on-chain leg of withdrawals.
// For withdrawals the anchor is asked first where to send the funds; that
// call moves no value, so any failure there still aborts cleanly.
func (o *Orchestrator) executeTransfer(ctx context.Context, in *models.Intent) error {
	source, err := o.ledger.GetAccount(ctx, in.SourceAccountID)
	if err != nil {
		return err
	}
	signer, err := o.signers.Signer(source)
	if err != nil {
		_, ferr := o.abortCreated(ctx, in, &Failure{Class: ClassLedger, Reason: "signing_key_unavailable", Err: err})
		return ferr
	}
	if err := o.checkOnChain(ctx, in, source); err != nil {
		return err
	}

	var destination, memo string
	upd := models.IntentUpdate{}
	switch in.Kind {
	case models.KindWithdrawal:
		ack, err := anchor.Authorized(ctx, o.tokens, func(ctx context.Context, token string) (*anchor.WithdrawAck, error) {
			return o.anchor.InitiateWithdrawal(ctx, token, source.PublicID, in.AssetCode, anchor.WithdrawDetails{
				Amount:     in.ResolvedAmount,
				Type:       withdrawMethod,
				Dest:       source.Bank.AccountNumber,
				DestExtra:  source.Bank.ClearingCode,
				ExternalID: in.IdempotencyKey,
			})
		})
		if err != nil {
			// no value has moved yet, so even an unknown outcome here is
			// safe to abort; a withdrawal left open at the anchor expires
			// unfunded
			f := o.classify(targetAnchor, err)
			if f == nil {
				f = &Failure{Class: ClassRejected, Reason: "anchor_unavailable", Err: err}
			}
			_, ferr := o.abortCreated(ctx, in, f)
			return ferr
		}
		o.observer.ExternalCall(targetAnchor, "accepted")
		destination, memo = ack.AccountID, ack.Memo
		if memo == "" {
			memo = network.MemoFor(in.IdempotencyKey)
		}
		upd.ExternalDestination = destination

	default:
		recipient, err := o.ledger.GetAccount(ctx, in.DestinationAccountID)
		if err != nil {
			return err
		}
		destination, memo = recipient.PublicID, network.MemoFor(in.IdempotencyKey)
	}

	now := o.now()
	upd.Memo, upd.SubmittedAt = memo, &now
	if err := o.transition(ctx, in, models.IntentExternalPending, upd); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	ref, err := o.network.SubmitTransfer(ctx, network.Transfer{
		Source:      signer,
		Destination: destination,
		Asset:       o.cfg.Asset,
		Amount:      in.ResolvedAmount,
		Memo:        memo,
		ValidUntil:  now.Add(o.cfg.TransferValidity),
	})
	return o.settleExternal(ctx, in, targetNetwork, ref, err)
}

// checkOnChain refuses, before anything is sent, a transfer the source's
// network account cannot fund. A network that cannot be reached leaves the
// intent in created, to be resumed under the same key or abandoned by the
// reconciler.
func (o *Orchestrator) checkOnChain(ctx context.Context, in *models.Intent, source *models.Account) error {
	acc, err := o.network.LoadAccount(ctx, source.PublicID)
	switch {
	case errors.Is(err, network.ErrAccountNotReady):
		_, ferr := o.abortCreated(ctx, in, &Failure{Class: ClassRejected, Reason: "account_not_ready",
			Err: fmt.Errorf("%w: %w", ErrAccountNotReady, err)})
		return ferr
	case err != nil:
		return fmt.Errorf("load network account of %s: %w", source.AccountNumber, err)
	}

	if have := acc.BalanceOf(o.cfg.Asset); have.LessThan(in.ResolvedAmount) {
		o.observer.ExternalCall(targetNetwork, string(ClassRejected))
		_, ferr := o.abortCreated(ctx, in, &Failure{Class: ClassRejected, Reason: string(network.ReasonInsufficientFunds),
			Err: fmt.Errorf("%w: holds %s, needs %s", ErrInsufficientOnChain, have, in.ResolvedAmount)})
		return ferr
	}
	return nil
}

// settleExternal records the outcome of the external call of a pending
// intent. An unknown outcome leaves the intent pending.
func (o *Orchestrator) settleExternal(ctx context.Context, in *models.Intent, target, ref string, err error) error {
	if err == nil {
		o.observer.ExternalCall(target, "settled")
		return o.transition(ctx, in, models.IntentExternalSettled, models.IntentUpdate{ExternalRef: ref})
	}

	f := o.classify(target, err)
	if f == nil {
		o.observer.ExternalCall(target, string(ClassAmbiguous))
		o.logger.Warn(ctx, "external outcome unknown", "intent_id", in.ID, "target", target, "error", err)
		return nil
	}

	o.observer.ExternalCall(target, string(f.Class))
	o.logger.Warn(ctx, "external operation failed", "intent_id", in.ID, "target", target, "reason", f.Reason)
	return o.transition(ctx, in, models.IntentExternalFailed, models.IntentUpdate{FailureReason: encodeReason(f.Class, f.Reason)})
}

// classify turns an external error into a definite Failure, or nil when the
// outcome is unknown.
func (o *Orchestrator) classify(target string, err error) *Failure {
	var nf *network.Failure
	var rej *anchor.Rejection
	switch {
	case errors.As(err, &nf):
		return &Failure{Class: ClassRejected, Reason: string(nf.Reason), Err: err}
	case errors.Is(err, network.ErrAccountNotReady):
		return &Failure{Class: ClassRejected, Reason: "account_not_ready", Err: fmt.Errorf("%w: %w", ErrAccountNotReady, err)}
	case errors.As(err, &rej):
		return &Failure{Class: ClassRejected, Reason: target + "_rejected", Err: err}
	case errors.Is(err, anchor.ErrNoToken):
		return &Failure{Class: ClassCredential, Reason: "token_unavailable", Err: err}
	case errors.Is(err, anchor.ErrUnauthorized):
		return &Failure{Class: ClassCredential, Reason: "anchor_unauthorized", Err: err}
	}
	return nil
}

// resolvePending asks the external side what became of a pending intent.
// Finding nothing parks the intent, except for network transfers whose
// validity window has passed and whose whole history since submission was
// searched: those can no longer be applied and fail. A lookup that errors or
// stops short leaves the intent parked.
func (o *Orchestrator) resolvePending(ctx context.Context, in *models.Intent) error {
	switch in.Kind {
	case models.KindDeposit:
		tx, err := anchor.Authorized(ctx, o.tokens, func(ctx context.Context, token string) (*anchor.Transaction, error) {
			return o.anchor.FindTransaction(ctx, token, in.IdempotencyKey)
		})
		switch {
		case errors.Is(err, anchor.ErrNotFound):
			o.logger.Info(ctx, "deposit not known to anchor, parked", "intent_id", in.ID)
			return nil
		case err != nil:
			o.logger.Warn(ctx, "anchor lookup failed", "intent_id", in.ID, "error", err)
			return nil
		case tx.Failed():
			return o.transition(ctx, in, models.IntentExternalFailed, models.IntentUpdate{
				FailureReason: encodeReason(ClassRejected, "anchor_"+tx.Status),
			})
		}
		return o.transition(ctx, in, models.IntentExternalSettled, models.IntentUpdate{ExternalRef: tx.ID})

	case models.KindTransfer, models.KindWithdrawal:
		source, err := o.ledger.GetAccount(ctx, in.SourceAccountID)
		if err != nil {
			return err
		}
		// the network's clock may run behind ours
		since := o.submittedAt(in).Add(-o.cfg.ReconcileGrace)
		ref, found, err := o.network.FindTransfer(ctx, source.PublicID, in.Memo, since)
		if err != nil {
			o.logger.Warn(ctx, "network lookup failed", "intent_id", in.ID, "error", err)
			return nil
		}
		if found {
			return o.transition(ctx, in, models.IntentExternalSettled, models.IntentUpdate{ExternalRef: ref})
		}
		if o.validityExpired(in) {
			return o.transition(ctx, in, models.IntentExternalFailed, models.IntentUpdate{
				FailureReason: encodeReason(ClassRejected, string(network.ReasonExpired)),
			})
		}
		o.logger.Info(ctx, "transfer not found yet, parked", "intent_id", in.ID)
	}
	return nil
}

func (o *Orchestrator) validityExpired(in *models.Intent) bool {
	return o.now().After(o.submittedAt(in).Add(o.cfg.TransferValidity + o.cfg.ReconcileGrace))
}

func (o *Orchestrator) submittedAt(in *models.Intent) time.Time {
	if in.SubmittedAt != nil {
		return *in.SubmittedAt
	}
	return in.UpdatedAt
}
