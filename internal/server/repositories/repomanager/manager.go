package repomanager

import (
	"context"
	"database/sql"

	"github.com/afriswift/settlement/internal/dbx"
	"github.com/afriswift/settlement/internal/server/repositories/accounts"
	"github.com/afriswift/settlement/internal/server/repositories/balances"
	"github.com/afriswift/settlement/internal/server/repositories/intents"
	"github.com/afriswift/settlement/internal/server/repositories/refreshtokens"
	"github.com/afriswift/settlement/internal/server/repositories/trustlines"
)

// RepositoryManager vends repositories bound to a DBTX so callers can use
// the same code inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Balances(db dbx.DBTX) balances.Repository
	Trustlines(db dbx.DBTX) trustlines.Repository
	Intents(db dbx.DBTX) intents.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
