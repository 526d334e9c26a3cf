package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, []byte("salt-1"))
	key2 := DeriveKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("custody"), []byte("salt"))
	seed := []byte("0123456789abcdef0123456789abcdef")

	ct, nonce, err := Seal(seed, key, []byte("acc-1"))
	require.NoError(t, err)
	assert.Len(t, nonce, 12)
	assert.NotEqual(t, seed, ct)

	got, err := Open(ct, nonce, key, []byte("acc-1"))
	require.NoError(t, err)
	assert.Equal(t, seed, got)
}

func TestOpen_Failures(t *testing.T) {
	key := DeriveKey([]byte("custody"), []byte("salt"))
	ct, nonce, err := Seal([]byte("seed"), key, []byte("acc-1"))
	require.NoError(t, err)

	t.Run("other account", func(t *testing.T) {
		_, err := Open(ct, nonce, key, []byte("acc-2"))
		assert.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := Open(ct, nonce, DeriveKey([]byte("other"), []byte("salt")), []byte("acc-1"))
		assert.Error(t, err)
	})

	t.Run("short key", func(t *testing.T) {
		_, err := Open(ct, nonce, []byte("short"), []byte("acc-1"))
		assert.ErrorIs(t, err, ErrKeySize)
	})
}

func TestSeal_NonceIsFresh(t *testing.T) {
	key := DeriveKey([]byte("custody"), []byte("salt"))
	_, n1, err := Seal([]byte("seed"), key, nil)
	require.NoError(t, err)
	_, n2, err := Seal([]byte("seed"), key, nil)
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword([]byte("s3cret!"))
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, []byte("s3cret!")))
	assert.False(t, CheckPassword(hash, []byte("S3cret!")))
	assert.False(t, CheckPassword([]byte("not-a-hash"), []byte("s3cret!")))
}
