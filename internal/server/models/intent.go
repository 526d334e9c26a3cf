package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type IntentKind string

const (
	KindDeposit    IntentKind = "deposit"
	KindTransfer   IntentKind = "p2p-transfer"
	KindWithdrawal IntentKind = "withdrawal"
	KindConversion IntentKind = "conversion"
)

type IntentStatus string

const (
	IntentCreated         IntentStatus = "created"
	IntentExternalPending IntentStatus = "external-pending"
	IntentExternalSettled IntentStatus = "external-settled"
	IntentExternalFailed  IntentStatus = "external-failed"
	IntentLedgerApplied   IntentStatus = "ledger-applied"
	IntentAborted         IntentStatus = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s IntentStatus) Terminal() bool {
	return s == IntentLedgerApplied || s == IntentAborted
}

// Intent is the durable record of one settlement operation.
//
// ResolvedAmount is always expressed in AssetCode. For conversions the
// payout side lives in PayoutCurrency/PayoutAmount. SubmittedAt is set when
// the external operation is sent and is what the reconciler measures the
// transfer validity window from.
type Intent struct {
	ID                   string
	IdempotencyKey       string
	Kind                 IntentKind
	SourceAccountID      string
	DestinationAccountID string
	ExternalDestination  string
	Memo                 string
	RequestedAmount      decimal.Decimal
	RequestedCurrency    string
	AssetCode            string
	ResolvedAmount       decimal.Decimal
	PayoutCurrency       string
	PayoutAmount         decimal.Decimal
	Status               IntentStatus
	ExternalRef          string
	FailureReason        string
	ParentIntentID       string
	SubmittedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	// LastCheckedAt is when the reconciler last looked at the intent
	// without being able to move it.
	LastCheckedAt *time.Time
}

// IntentUpdate carries the optional fields written alongside a status
// transition. Empty values leave the stored column unchanged.
type IntentUpdate struct {
	ExternalRef         string
	FailureReason       string
	ExternalDestination string
	Memo                string
	SubmittedAt         *time.Time
}
