package anchor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	tokens      []string
	issued      int
	invalidated []string
	err         error
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	t := f.tokens[f.issued]
	if f.issued < len(f.tokens)-1 {
		f.issued++
	}
	return t, nil
}

func (f *fakeTokens) Invalidate(token string) { f.invalidated = append(f.invalidated, token) }

func TestAuthorized(t *testing.T) {
	t.Run("first token accepted", func(t *testing.T) {
		tokens := &fakeTokens{tokens: []string{"a", "b"}}
		calls := 0
		res, err := Authorized(context.Background(), tokens, func(_ context.Context, token string) (string, error) {
			calls++
			return "ok:" + token, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok:a", res)
		assert.Equal(t, 1, calls)
		assert.Empty(t, tokens.invalidated)
	})

	t.Run("retries once with fresh token", func(t *testing.T) {
		tokens := &fakeTokens{tokens: []string{"stale", "fresh"}}
		var seen []string
		res, err := Authorized(context.Background(), tokens, func(_ context.Context, token string) (string, error) {
			seen = append(seen, token)
			if token == "stale" {
				return "", ErrUnauthorized
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
		assert.Equal(t, []string{"stale", "fresh"}, seen)
		assert.Equal(t, []string{"stale"}, tokens.invalidated)
	})

	t.Run("second refusal is surfaced", func(t *testing.T) {
		tokens := &fakeTokens{tokens: []string{"a", "b", "c"}}
		calls := 0
		_, err := Authorized(context.Background(), tokens, func(context.Context, string) (int, error) {
			calls++
			return 0, fmt.Errorf("deposit: %w", ErrUnauthorized)
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, 2, calls)
	})

	t.Run("token failure skips the call", func(t *testing.T) {
		boom := errors.New("auth down")
		tokens := &fakeTokens{err: boom}
		calls := 0
		_, err := Authorized(context.Background(), tokens, func(context.Context, string) (int, error) {
			calls++
			return 0, nil
		})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, ErrNoToken)
		assert.Zero(t, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		tokens := &fakeTokens{tokens: []string{"a", "b"}}
		calls := 0
		_, err := Authorized(context.Background(), tokens, func(context.Context, string) (int, error) {
			calls++
			return 0, &Rejection{Status: 400, Message: "bad"}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestTransaction_Failed(t *testing.T) {
	for status, want := range map[string]bool{
		"completed":                   false,
		"pending_user_transfer_start": false,
		"error":                       true,
		"expired":                     true,
		"refunded":                    true,
	} {
		assert.Equal(t, want, (&Transaction{Status: status}).Failed(), status)
	}
}
