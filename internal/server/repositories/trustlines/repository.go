// Package trustlines declares the repository contract for account trustlines.
package trustlines

import (
	"context"

	"github.com/afriswift/settlement/internal/server/models"
)

type Repository interface {
	// Upsert stores the trustline. An established trustline is never
	// downgraded.
	Upsert(ctx context.Context, t *models.Trustline) error
	Has(ctx context.Context, accountID, asset, issuer string) (bool, error)
	List(ctx context.Context, accountID string) ([]*models.Trustline, error)
}
