package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Profile(ctx context.Context) error
	SetBank(ctx context.Context) error
	Trust(ctx context.Context) error
	Deposit(ctx context.Context) error
	Transfer(ctx context.Context) error
	Withdraw(ctx context.Context) error
	Retry(ctx context.Context) error
	Show(ctx context.Context, id string) error
	List(ctx context.Context) error
	Receipt(ctx context.Context, id string) error
}

// runREPL reads commands from reader and dispatches them to a until EOF,
// "exit" or "quit".
//
//	Not logged in:
//	  - help, register, login, exit | quit
//
//	Logged in:
//	  - profile          account, KYC state, balances and trustlines
//	  - bank             set bank details used for withdrawals
//	  - trust            establish a trustline
//	  - deposit          buy the settlement asset with fiat
//	  - transfer         send to another account number
//	  - withdraw         cash out to the bank account
//	  - retry            resend the last money request with the same key
//	  - show <id>        one intent
//	  - (l)ist           recent intents
//	  - receipt <id>     download the receipt of a settled intent
//	  - logout
//
// Command handlers prompt through the same reader, so piped input is consumed
// in order. Handler errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("settle %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		err = nil
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: profile, bank, trust, deposit, transfer, withdraw, retry, show <id>, (l)ist, receipt <id>, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			err = a.Register(ctx)

		case "login":
			err = a.Login(ctx)

		case "logout":
			err = a.Logout(ctx)

		case "profile":
			err = a.Profile(ctx)

		case "bank":
			err = a.SetBank(ctx)

		case "trust":
			err = a.Trust(ctx)

		case "deposit":
			err = a.Deposit(ctx)

		case "transfer":
			err = a.Transfer(ctx)

		case "withdraw":
			err = a.Withdraw(ctx)

		case "retry":
			err = a.Retry(ctx)

		case "show", "receipt":
			if len(args) == 0 {
				printlnFn(fmt.Sprintf("Usage: %s <intent id>", cmd))
				continue
			}
			if cmd == "show" {
				err = a.Show(ctx, args[0])
			} else {
				err = a.Receipt(ctx, args[0])
			}

		case "l", "list":
			err = a.List(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
