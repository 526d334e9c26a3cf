// Package intents declares the repository contract for settlement intents.
package intents

import (
	"context"
	"errors"
	"time"

	"github.com/afriswift/settlement/internal/server/models"
)

// ErrStaleTransition is returned when an intent is no longer in the status a
// transition expected, usually because another worker moved it first.
var ErrStaleTransition = errors.New("intent status changed concurrently")

type Repository interface {
	// Create inserts the intent in its current status. It returns false,
	// without error, when the idempotency key already exists.
	Create(ctx context.Context, intent *models.Intent) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Intent, error)
	GetByKey(ctx context.Context, key string) (*models.Intent, error)

	// Transition moves the intent from one status to another as a
	// compare-and-set, writing the non-empty fields of upd.
	Transition(ctx context.Context, id string, from, to models.IntentStatus, upd models.IntentUpdate) error

	// ListStale returns up to limit intents in status that were neither
	// updated nor checked since before, least recently seen first.
	ListStale(ctx context.Context, status models.IntentStatus, before time.Time, limit int) ([]*models.Intent, error)
	// Touch records that the intent was checked and left where it was.
	Touch(ctx context.Context, id string) error
	ListForAccount(ctx context.Context, accountID string, limit int) ([]*models.Intent, error)
}
