package api

// Amounts travel as decimal strings.

type Empty struct{}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
}

type RegisterResponse struct {
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"`
	PublicID      string `json:"public_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type BankDetails struct {
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	Branch        string `json:"branch,omitempty"`
	ClearingCode  string `json:"clearing_code,omitempty"`
}

type Balance struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type Trustline struct {
	Asset  string `json:"asset"`
	Issuer string `json:"issuer"`
}

type ProfileResponse struct {
	AccountID     string       `json:"account_id"`
	AccountNumber string       `json:"account_number"`
	Email         string       `json:"email"`
	FirstName     string       `json:"first_name"`
	LastName      string       `json:"last_name"`
	Phone         string       `json:"phone"`
	Country       string       `json:"country"`
	PublicID      string       `json:"public_id"`
	KYC           string       `json:"kyc"`
	Status        string       `json:"status"`
	Bank          *BankDetails `json:"bank,omitempty"`
	Balances      []Balance    `json:"balances"`
	Trustlines    []Trustline  `json:"trustlines"`
}

type SetBankDetailsRequest struct {
	Bank BankDetails `json:"bank"`
}

type EstablishTrustlineRequest struct {
	AssetCode string `json:"asset_code"`
	Issuer    string `json:"issuer"`
}

type DepositRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
}

type TransferRequest struct {
	IdempotencyKey         string `json:"idempotency_key"`
	RecipientAccountNumber string `json:"recipient_account_number"`
	Amount                 string `json:"amount"`
	Currency               string `json:"currency"`
}

type WithdrawRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
}

type Intent struct {
	ID                   string `json:"id"`
	Kind                 string `json:"kind"`
	Status               string `json:"status"`
	SourceAccountID      string `json:"source_account_id"`
	DestinationAccountID string `json:"destination_account_id,omitempty"`
	RequestedAmount      string `json:"requested_amount"`
	RequestedCurrency    string `json:"requested_currency"`
	Asset                string `json:"asset"`
	Amount               string `json:"amount"`
	PayoutAmount         string `json:"payout_amount,omitempty"`
	PayoutCurrency       string `json:"payout_currency,omitempty"`
	ExternalRef          string `json:"external_ref,omitempty"`
	FailureReason        string `json:"failure_reason,omitempty"`
	CreatedAt            string `json:"created_at"`
	UpdatedAt            string `json:"updated_at"`
}

type IntentResponse struct {
	Intent Intent `json:"intent"`
}

type GetIntentRequest struct {
	IntentID string `json:"intent_id"`
}

type ListIntentsRequest struct {
	Limit int `json:"limit"`
}

type ListIntentsResponse struct {
	Intents []Intent `json:"intents"`
}

type ReceiptURLRequest struct {
	IntentID string `json:"intent_id"`
}

type ReceiptURLResponse struct {
	URL string `json:"url"`
}
