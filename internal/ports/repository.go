package ports

import (
	"context"

	"github.com/bft-labs/dcaledger/internal/domain"
)

// Repository persists ledger state.
type Repository interface {
	// Load retrieves the persisted state.
	// Returns an empty snapshot and nil error if nothing was saved yet.
	Load(ctx context.Context) (domain.Snapshot, error)

	// Apply persists one committed changeset atomically.
	Apply(ctx context.Context, cs domain.Changeset) error

	// Close releases the underlying storage.
	Close() error
}

// JournalEntry is one persisted event with its position in the journal.
type JournalEntry struct {
	Cursor int64        `json:"cursor"`
	Event  domain.Event `json:"event"`
}

// Journal is implemented by repositories that keep an event history.
type Journal interface {
	// Events returns up to limit entries with a cursor greater than after,
	// oldest first.
	Events(ctx context.Context, after int64, limit int) ([]JournalEntry, error)

	// PruneEvents deletes all but the newest keep entries and returns the
	// number of entries removed.
	PruneEvents(ctx context.Context, keep int) (int64, error)
}
