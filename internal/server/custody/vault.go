// Package custody seals and unseals the settlement network signing keys of
// ledger accounts. Seeds are stored encrypted and bound to the account's
// public id.
package custody

import (
	"errors"
	"fmt"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/cryptox"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/network"
)

var ErrNoKey = errors.New("account has no signing key")

type Vault struct {
	key []byte
}

// NewVault derives the sealing key from passphrase and salt.
func NewVault(passphrase, salt string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("custody passphrase is empty")
	}
	return &Vault{key: cryptox.DeriveKey([]byte(passphrase), []byte(salt))}, nil
}

// Seal encrypts the seed of kp for storage on an account.
func (v *Vault) Seal(kp *network.KeyPair) (sealed, nonce []byte, err error) {
	seed := []byte(kp.Seed())
	defer common.WipeByteArray(seed)
	return cryptox.Seal(seed, v.key, []byte(kp.Address()))
}

// Signer unseals the signing key of account.
func (v *Vault) Signer(account *models.Account) (*network.KeyPair, error) {
	if len(account.SealedSeed) == 0 {
		return nil, ErrNoKey
	}
	seed, err := cryptox.Open(account.SealedSeed, account.SeedNonce, v.key, []byte(account.PublicID))
	if err != nil {
		return nil, fmt.Errorf("unseal key of %s: %w", account.AccountNumber, err)
	}
	defer common.WipeByteArray(seed)

	kp, err := network.ParseSeed(string(seed))
	if err != nil {
		return nil, err
	}
	if kp.Address() != account.PublicID {
		return nil, fmt.Errorf("unseal key of %s: public id mismatch", account.AccountNumber)
	}
	return kp, nil
}
