// Package ledger implements the recurring-purchase accrual ledger.
//
// Participants enter with a per-execution amount and a number of
// executions and deposit the whole commitment upfront. Execute converts the
// pooled installment of every active allocation through a venue in a single
// swap and records the resulting fixed-point price as a running sum
// (cumulative price) indexed by sequence number. Any allocation's bought
// balance is the difference of two cumulative prices times its amount, so
// entry, execution, balance queries and exit never iterate over
// participants or past executions.
//
// Allocations leave the pooled installment either when the execution with
// their EndSeq completes (via the scheduled removal for that sequence
// number) or when their owner exits early.
//
// Each operation stages a domain.Changeset, stores it through the optional
// Persister and only then applies it in memory, so a rejected or unstored
// operation leaves the ledger as it was.
//
// A Ledger is not safe for concurrent use. Callers serialize access; a
// nested mutating call made while another operation is in flight, for
// example from a venue callback, fails with domain.ErrReentrantCall.
package ledger
