// Package services contains server-side business logic that is not part of
// settlement itself. This file implements AccountService: registration with
// custody of the network key, login, refresh token rotation, profile reads
// and the admin KYC/status switches.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/cryptox"
	"github.com/afriswift/settlement/internal/dbx"
	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/auth"
	"github.com/afriswift/settlement/internal/server/config"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/network"
	"github.com/afriswift/settlement/internal/server/repositories/repomanager"
)

const (
	minPasswordLength = 8
	numberAttempts    = 5
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// KeyCustody seals new signing keys and unseals stored ones.
type KeyCustody interface {
	Seal(kp *network.KeyPair) (sealed, nonce []byte, err error)
	Signer(account *models.Account) (*network.KeyPair, error)
}

// AccountLedger is the part of the ledger store the account service reads
// and records trustlines in.
type AccountLedger interface {
	Balances(ctx context.Context, accountID string) ([]*models.Balance, error)
	Trustlines(ctx context.Context, accountID string) ([]*models.Trustline, error)
	RecordTrustline(ctx context.Context, t *models.Trustline) error
}

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Country   string
}

// Profile is an account with its balances and trustlines.
type Profile struct {
	Account    *models.Account
	Balances   []*models.Balance
	Trustlines []*models.Trustline
}

type AccountService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	custody                      KeyCustody
	network                      network.Client
	ledger                       AccountLedger
	asset                        network.Asset
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	custody KeyCustody, net network.Client, ledger AccountLedger, logger logging.Logger) *AccountService {
	return &AccountService{
		db:                           db,
		repomanager:                  m,
		custody:                      custody,
		network:                      net,
		ledger:                       ledger,
		asset:                        network.Asset{Code: cfg.AssetCode, Issuer: cfg.AssetIssuer},
		logger:                       logger.With("module", "accounts"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates an account in KYC pending state with a fresh network
// identity. Funding and the settlement asset trustline are attempted
// afterwards; their failure is logged and the account is still returned.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must have at least %d characters", common.ErrorValidation, minPasswordLength)
	}

	hash, err := cryptox.HashPassword([]byte(req.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	kp, err := network.RandomKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	sealed, nonce, err := s.custody.Seal(kp)
	if err != nil {
		return nil, fmt.Errorf("seal key: %w", err)
	}

	account := &models.Account{
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		Country:      strings.TrimSpace(req.Country),
		PasswordHash: hash,
		PublicID:     kp.Address(),
		SealedSeed:   sealed,
		SeedNonce:    nonce,
		KYC:          models.KYCPending,
		Status:       models.StatusActive,
	}

	repo := s.repomanager.Accounts(s.db)
	for attempt := 1; ; attempt++ {
		account.AccountNumber, err = common.MakeAccountNumber()
		if err != nil {
			return nil, fmt.Errorf("allocate account number: %w", err)
		}
		_, err = repo.Create(ctx, account)
		if err == nil {
			break
		}
		// a colliding number is retried, a taken email is final
		if errors.Is(err, common.ErrorAlreadyExists) && strings.Contains(err.Error(), "account_number") && attempt < numberAttempts {
			continue
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	s.logger.Info(ctx, "account registered", "account_id", account.ID, "account_number", account.AccountNumber)

	if err := s.network.Fund(ctx, account.PublicID); err != nil {
		s.logger.Warn(ctx, "funding network account failed", "account_id", account.ID, "error", err)
	}
	if err := s.establish(ctx, account, s.asset, kp); err != nil {
		s.logger.Warn(ctx, "trustline not established at registration", "account_id", account.ID, "error", err)
	}

	return account, nil
}

// Login verifies the password and, for accounts that are not blocked,
// returns a new TokenPair.
func (s *AccountService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	repo := s.repomanager.Accounts(s.db)
	account, err := repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// keep the timing of unknown emails close to wrong passwords
			_ = cryptox.CheckPassword(dummyHash(), []byte(password))
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if !cryptox.CheckPassword(account.PasswordHash, []byte(password)) {
		return nil, common.ErrorUnauthorized
	}
	if account.Status == models.StatusBlocked {
		return nil, common.ErrAccountBlocked
	}
	return s.generateTokenPair(ctx, account.ID, s.db)
}

var dummyHash = sync.OnceValue(func() []byte {
	h, _ := cryptox.HashPassword([]byte("not-a-password"))
	return h
})

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *AccountService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.RefreshTokens(tx)
		if err := repoTx.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.AccountID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *AccountService) Profile(ctx context.Context, accountID string) (*Profile, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	balances, err := s.ledger.Balances(ctx, accountID)
	if err != nil {
		return nil, err
	}
	lines, err := s.ledger.Trustlines(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Profile{Account: account, Balances: balances, Trustlines: lines}, nil
}

// SetBankDetails stores the withdrawal destination of an account.
func (s *AccountService) SetBankDetails(ctx context.Context, accountID string, details *models.BankDetails) error {
	if details == nil || strings.TrimSpace(details.AccountNumber) == "" {
		return fmt.Errorf("%w: bank account number is required", common.ErrorValidation)
	}
	return s.repomanager.Accounts(s.db).SetBankDetails(ctx, accountID, details)
}

// EstablishTrustline opens a trustline for asset on the account's network
// identity and records it. A zero asset means the settlement asset.
func (s *AccountService) EstablishTrustline(ctx context.Context, accountID string, asset network.Asset) error {
	if asset.Code == "" {
		asset = s.asset
	}
	if asset.Native() {
		return fmt.Errorf("%w: the native asset needs no trustline", common.ErrorValidation)
	}
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	signer, err := s.custody.Signer(account)
	if err != nil {
		return fmt.Errorf("unseal key: %w", err)
	}
	return s.establish(ctx, account, asset, signer)
}

func (s *AccountService) establish(ctx context.Context, account *models.Account, asset network.Asset, signer *network.KeyPair) error {
	if err := s.network.EstablishTrustline(ctx, signer, asset); err != nil {
		return fmt.Errorf("establish trustline %s: %w", asset, err)
	}
	err := s.ledger.RecordTrustline(ctx, &models.Trustline{
		AccountID:   account.ID,
		AssetCode:   asset.Code,
		Issuer:      asset.Issuer,
		Established: true,
	})
	if err != nil {
		return fmt.Errorf("record trustline %s: %w", asset, err)
	}
	s.logger.Info(ctx, "trustline established", "account_id", account.ID, "asset", asset.String())
	return nil
}

// SetKYCState is an admin operation keyed by account number.
func (s *AccountService) SetKYCState(ctx context.Context, accountNumber string, state models.KYCState) error {
	switch state {
	case models.KYCPending, models.KYCApproved, models.KYCRejected:
	default:
		return fmt.Errorf("%w: unknown kyc state %q", common.ErrorValidation, state)
	}
	if err := s.repomanager.Accounts(s.db).SetKYCState(ctx, accountNumber, state); err != nil {
		return err
	}
	s.logger.Info(ctx, "kyc state changed", "account_number", accountNumber, "state", state)
	return nil
}

// SetStatus is an admin operation keyed by account number.
func (s *AccountService) SetStatus(ctx context.Context, accountNumber string, status models.AccountStatus) error {
	switch status {
	case models.StatusActive, models.StatusInactive, models.StatusBlocked:
	default:
		return fmt.Errorf("%w: unknown account status %q", common.ErrorValidation, status)
	}
	if err := s.repomanager.Accounts(s.db).SetStatus(ctx, accountNumber, status); err != nil {
		return err
	}
	s.logger.Info(ctx, "account status changed", "account_number", accountNumber, "status", status)
	return nil
}

// PurgeExpiredTokens removes refresh tokens that can no longer be used.
func (s *AccountService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, time.Now())
}

// --- helpers below ---

func (s *AccountService) generateAccessToken(accountID string) (string, error) {
	return auth.GenerateToken(accountID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *AccountService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *AccountService) generateTokenPair(ctx context.Context, accountID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(accountID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if err := refreshRepo.Create(ctx, accountID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
