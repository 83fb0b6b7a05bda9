// Package domain contains the core entities and value objects of the
// recurring-purchase ledger.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure concerns (HTTP, storage, logging) and only holds data types,
// fixed-point arithmetic, and the error taxonomy shared by every layer.
//
// # Entities
//
//   - [Allocation]: one participant's commitment (amount per execution,
//     first and last sequence number, owner)
//   - [Snapshot]: the complete ledger state (aggregate installment, removal
//     queue, cumulative price ledger, allocation store)
//   - [Changeset]: the keys touched by one committed operation
//   - [Event]: enter, execute and exit notifications
//
// # Amounts
//
// Every quantity is an [Amount]: an unsigned 256-bit integer in base units.
// Arithmetic is checked; overflow and underflow surface as [ErrOverflow]
// instead of wrapping around.
package domain
