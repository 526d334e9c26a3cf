package settlement

import (
	"errors"
	"fmt"
	"strings"
)

// Class groups settlement failures by what they imply for the ledger.
type Class string

const (
	// ClassGating failures happen before any external call. Nothing changed.
	ClassGating Class = "gating"
	// ClassRejected means the external side definitely refused the operation.
	ClassRejected Class = "rejected"
	// ClassAmbiguous means the external outcome is unknown and the intent is
	// parked for reconciliation. It is never returned to callers as an error.
	ClassAmbiguous Class = "ambiguous"
	// ClassLedger covers local persistence failures.
	ClassLedger Class = "ledger"
	// ClassCredential means no valid anchor token could be obtained.
	ClassCredential Class = "credential"
)

var (
	ErrNotEligible          = errors.New("account is not eligible for settlement")
	ErrMissingTrustline     = errors.New("trustline for the settlement asset is not established")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrSelfTransfer         = errors.New("cannot transfer to own account")
	ErrRecipientUnavailable = errors.New("recipient account not found or inactive")
	ErrNoBankDetails        = errors.New("bank details are required for withdrawal")
	ErrAccountNotReady      = errors.New("network account not ready")
	ErrInsufficientOnChain  = errors.New("insufficient on-chain balance")
)

// Failure is the error returned by the orchestrator for a settlement that
// did not complete.
type Failure struct {
	Class  Class
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Reason != "" {
		return fmt.Sprintf("%s failure (%s): %v", f.Class, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s failure: %v", f.Class, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func gatingFailure(err error) *Failure {
	return &Failure{Class: ClassGating, Err: err}
}

// encodeReason packs a class and detail into the intent's failure_reason.
func encodeReason(class Class, detail string) string {
	return string(class) + ":" + detail
}

// reasonErrors maps stored failure details back to the sentinel callers
// match on.
var reasonErrors = map[string]error{
	"account_not_ready":  ErrAccountNotReady,
	"insufficient_funds": ErrInsufficientOnChain,
}

// failureFromReason rebuilds the Failure of an aborted intent.
func failureFromReason(reason string) *Failure {
	class, detail, ok := strings.Cut(reason, ":")
	if !ok {
		class, detail = string(ClassRejected), reason
	}
	err, known := reasonErrors[detail]
	if !known {
		err = errors.New("intent aborted")
	}
	return &Failure{Class: Class(class), Reason: detail, Err: err}
}
