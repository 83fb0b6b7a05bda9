package ports

import "github.com/bft-labs/dcaledger/internal/domain"

// EventSink receives ledger events after they are committed.
// Implementations must not call back into the ledger.
type EventSink interface {
	OnEnter(e domain.EnterEvent)
	OnExecute(e domain.ExecuteEvent)
	OnExit(e domain.ExitEvent)
}
