package cli

import (
	"context"
	"fmt"

	"github.com/afriswift/settlement/internal/api"
	"github.com/afriswift/settlement/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for the account holder's details and creates an account.
// The new account starts with KYC pending.
func (a *App) Register(ctx context.Context) error {
	req := &api.RegisterRequest{}
	fields := []struct {
		prompt string
		dst    *string
	}{
		{"Enter email", &req.Email},
		{"First name", &req.FirstName},
		{"Last name", &req.LastName},
		{"Phone", &req.Phone},
		{"Country", &req.Country},
	}
	for _, f := range fields {
		v, err := getSimpleText(a.reader, f.prompt, a.out)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)
	req.Password = string(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	resp, err := a.client.Register(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Registered account %s (network id %s). KYC approval is pending.\n", resp.AccountNumber, resp.PublicID)
	return nil
}

// Login prompts for credentials and opens a session.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.client.Login(ctx, email, string(password)); err != nil {
		return err
	}
	a.setMode(ModeOnline)

	profile, err := a.client.Profile(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.accountNumber = profile.AccountNumber
	a.mu.Unlock()

	fmt.Fprintf(a.out, "Logged in as %s\n", profile.AccountNumber)
	return nil
}

// Logout drops the session tokens.
func (a *App) Logout(ctx context.Context) error {
	a.client.Logout()

	a.mu.Lock()
	a.accountNumber = ""
	a.lastMoney = nil
	a.mu.Unlock()
	return nil
}
