// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type KYCState string

const (
	KYCPending  KYCState = "pending"
	KYCApproved KYCState = "approved"
	KYCRejected KYCState = "rejected"
)

type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
	StatusBlocked  AccountStatus = "blocked"
)

// BankDetails is the fiat destination used for withdrawals.
type BankDetails struct {
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	BankName      string `json:"bank_name"`
	Branch        string `json:"branch"`
	ClearingCode  string `json:"clearing_code"`
}

// Account is an internal ledger account. SealedSeed holds the settlement
// network signing seed encrypted under the custody key and never leaves the
// server.
type Account struct {
	ID            string
	AccountNumber string
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	Country       string
	PasswordHash  []byte
	PublicID      string
	SealedSeed    []byte
	SeedNonce     []byte
	KYC           KYCState
	Status        AccountStatus
	Bank          *BankDetails
	CreatedAt     time.Time
}

// Eligible reports whether the account may take part in settlement.
func (a *Account) Eligible() bool {
	return a.KYC == KYCApproved && a.Status == StatusActive
}

type Balance struct {
	AccountID string
	AssetCode string
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

// Trustline records that an account's network identity accepts an asset.
type Trustline struct {
	AccountID   string
	AssetCode   string
	Issuer      string
	Established bool
	CreatedAt   time.Time
}
