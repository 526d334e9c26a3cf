package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/afriswift/settlement/internal/api"
)

func (a *App) Profile(ctx context.Context) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	p, err := a.client.Profile(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Account %s  %s %s <%s>\n", p.AccountNumber, p.FirstName, p.LastName, p.Email)
	fmt.Fprintf(a.out, "Country %s  KYC %s  status %s\n", p.Country, p.KYC, p.Status)
	fmt.Fprintf(a.out, "Network id %s\n", p.PublicID)
	if p.Bank != nil {
		fmt.Fprintf(a.out, "Bank %s %s (%s)\n", p.Bank.BankName, p.Bank.AccountNumber, p.Bank.Branch)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tBALANCE")
	for _, b := range p.Balances {
		fmt.Fprintf(tw, "%s\t%s\n", b.Asset, b.Amount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(p.Trustlines) > 0 {
		lines := make([]string, 0, len(p.Trustlines))
		for _, t := range p.Trustlines {
			lines = append(lines, t.Asset)
		}
		fmt.Fprintf(a.out, "Trustlines: %s\n", strings.Join(lines, ", "))
	}
	return nil
}

// SetBank prompts for the bank account withdrawals pay out to.
func (a *App) SetBank(ctx context.Context) error {
	var bank api.BankDetails
	fields := []struct {
		prompt string
		dst    *string
	}{
		{"Bank account number", &bank.AccountNumber},
		{"Account type", &bank.AccountType},
		{"Bank name", &bank.BankName},
		{"Branch", &bank.Branch},
		{"Clearing code", &bank.ClearingCode},
	}
	for _, f := range fields {
		v, err := getSimpleText(a.reader, f.prompt, a.out)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.client.SetBankDetails(ctx, bank); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Bank details saved")
	return nil
}

// Trust establishes a trustline. An empty asset code means the settlement
// asset.
func (a *App) Trust(ctx context.Context) error {
	code, err := getSimpleText(a.reader, "Asset code (empty for the settlement asset)", a.out)
	if err != nil {
		return err
	}
	var issuer string
	if code != "" {
		if issuer, err = getSimpleText(a.reader, "Issuer", a.out); err != nil {
			return err
		}
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.client.EstablishTrustline(ctx, code, issuer); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Trustline established")
	return nil
}
