// Package cryptox wraps the primitives the service uses to keep secrets at
// rest: argon2id key derivation, AES-GCM sealing of account signing seeds
// and bcrypt password hashes.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrKeySize is returned when a sealing key is not 32 bytes long.
var ErrKeySize = errors.New("custody key must be 32 bytes")

// DeriveKey stretches a passphrase into a 32-byte AES-256 key.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext with AES-256-GCM under key. A fresh random nonce is
// generated for every call and returned next to the ciphertext. The
// additional data binds the ciphertext to its owner, e.g. an account id.
//
// Example:
//
//	key := cryptox.DeriveKey([]byte(cfg.CustodyPassphrase), []byte(cfg.CustodySalt))
//	sealed, nonce, err := cryptox.Seal(seed, key, []byte(accountID))
func Seal(plaintext, key, additionalData []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, additionalData), nonce, nil
}

// Open reverses Seal. The same key, nonce and additional data must be
// supplied or authentication fails.
func Open(ciphertext, nonce, key, additionalData []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, additionalData)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, password) == nil
}
