// Package ports defines the interfaces (ports) that connect the ledger core
// and the application layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [Asset]: A fungible token the ledger holds and moves
//   - [Venue]: The external conversion venue used by Execute
//   - [TimeGate]: Source of the current execution period
//   - [Repository]: Persists ledger changesets and loads snapshots
//   - [Journal]: Pages and trims the persisted event journal
//   - [EventSink]: Receives committed ledger events
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The ledger (internal/ledger) and the application layer (internal/app)
// depend only on these interfaces. Adapters under internal/adapters provide
// the in-memory token, fixed-rate and HTTP venues, clocks, and the sqlite
// and file repositories.
package ports
