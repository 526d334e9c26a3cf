package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/afriswift/settlement/internal/api"
	"github.com/afriswift/settlement/internal/client/client"
	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/filex"
	"github.com/afriswift/settlement/internal/netx"
	"github.com/google/uuid"
)

// Seams for tests.
var (
	newIdempotencyKey = uuid.NewString
	download          = netx.Download
	saveFile          = filex.SaveInSubDir
)

const listLimit = 20

// Deposit buys the settlement asset with fiat through the anchor.
func (a *App) Deposit(ctx context.Context) error {
	amount, err := getSimpleText(a.reader, "Amount", a.out)
	if err != nil {
		return err
	}
	currency, err := GetWithDefault(a.reader, "Currency", common.CurrencyXOF, a.out)
	if err != nil {
		return err
	}

	req := &api.DepositRequest{IdempotencyKey: newIdempotencyKey(), Amount: amount, Currency: currency}
	return a.money(ctx, func(ctx context.Context) (*api.Intent, error) {
		return a.client.Deposit(ctx, req)
	})
}

// Transfer sends to another account by account number.
func (a *App) Transfer(ctx context.Context) error {
	recipient, err := getSimpleText(a.reader, "Recipient account number", a.out)
	if err != nil {
		return err
	}
	amount, err := getSimpleText(a.reader, "Amount", a.out)
	if err != nil {
		return err
	}
	currency, err := GetWithDefault(a.reader, "Currency", common.AssetSRT, a.out)
	if err != nil {
		return err
	}

	req := &api.TransferRequest{
		IdempotencyKey:         newIdempotencyKey(),
		RecipientAccountNumber: recipient,
		Amount:                 amount,
		Currency:               currency,
	}
	return a.money(ctx, func(ctx context.Context) (*api.Intent, error) {
		return a.client.Transfer(ctx, req)
	})
}

// Withdraw cashes out to the registered bank account.
func (a *App) Withdraw(ctx context.Context) error {
	amount, err := getSimpleText(a.reader, "Amount", a.out)
	if err != nil {
		return err
	}
	currency, err := GetWithDefault(a.reader, "Currency", common.CurrencyXOF, a.out)
	if err != nil {
		return err
	}

	req := &api.WithdrawRequest{IdempotencyKey: newIdempotencyKey(), Amount: amount, Currency: currency}
	return a.money(ctx, func(ctx context.Context) (*api.Intent, error) {
		return a.client.Withdraw(ctx, req)
	})
}

// Retry resends the last money request. The server recognises the key and
// returns the existing intent instead of settling twice.
func (a *App) Retry(ctx context.Context) error {
	a.mu.Lock()
	last := a.lastMoney
	a.mu.Unlock()

	if last == nil {
		return errors.New("nothing to retry")
	}
	return a.money(ctx, last)
}

func (a *App) money(ctx context.Context, call func(ctx context.Context) (*api.Intent, error)) error {
	a.mu.Lock()
	a.lastMoney = call
	a.mu.Unlock()

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	in, err := call(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			fmt.Fprintln(a.out, "The request may or may not have reached the server; use 'retry' to resend it safely.")
		}
		return err
	}

	a.printIntent(in)
	if in.Status == "external-pending" {
		fmt.Fprintln(a.out, "Settlement is pending; check again later with 'show'.")
	}
	return nil
}

func (a *App) Show(ctx context.Context, id string) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	in, err := a.client.GetIntent(ctx, id)
	if err != nil {
		return err
	}
	a.printIntent(in)
	return nil
}

func (a *App) List(ctx context.Context) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	list, err := a.client.ListIntents(ctx, listLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No intents yet")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tAMOUNT\tCREATED")
	for _, in := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\n", in.ID, in.Kind, in.Status, in.Amount, in.Asset, in.CreatedAt)
	}
	return tw.Flush()
}

// Receipt downloads the archived receipt of a settled intent into the
// download directory.
func (a *App) Receipt(ctx context.Context, id string) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	url, err := a.client.ReceiptURL(ctx, id)
	if err != nil {
		return err
	}
	data, err := download(ctx, a.httpClient, url)
	if err != nil {
		return err
	}
	path, err := saveFile(a.config.DownloadDir, id+".json", data)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Receipt saved to %s\n", path)
	return nil
}

func (a *App) printIntent(in *api.Intent) {
	fmt.Fprintf(a.out, "Intent %s (%s): %s\n", in.ID, in.Kind, in.Status)
	fmt.Fprintf(a.out, "  requested %s %s, settled %s %s\n", in.RequestedAmount, in.RequestedCurrency, in.Amount, in.Asset)
	if in.PayoutAmount != "" {
		fmt.Fprintf(a.out, "  payout %s %s\n", in.PayoutAmount, in.PayoutCurrency)
	}
	if in.ExternalRef != "" {
		fmt.Fprintf(a.out, "  network ref %s\n", in.ExternalRef)
	}
	if in.FailureReason != "" {
		fmt.Fprintf(a.out, "  failure %s\n", in.FailureReason)
	}
}
