package domain

// Changeset describes the state touched by one committed ledger operation.
// Repositories persist it instead of the full snapshot so that the cost of
// a write does not depend on the number of allocations or executions.
type Changeset struct {
	// Meta is the scalar state after the operation
	Meta Meta

	// Allocations are inserted or replaced by id
	Allocations []Allocation

	// DeletedAllocations are removed from the store
	DeletedAllocations []uint64

	// ScheduledRemovals holds new values per sequence number; zero deletes
	ScheduledRemovals map[uint64]Amount

	// CumulativePrices holds new price points per sequence number
	CumulativePrices map[uint64]Amount

	// Events emitted by the operation, in order
	Events []Event
}

// Empty returns true if the changeset carries no keyed changes or events.
func (c Changeset) Empty() bool {
	return len(c.Allocations) == 0 && len(c.DeletedAllocations) == 0 &&
		len(c.ScheduledRemovals) == 0 && len(c.CumulativePrices) == 0 &&
		len(c.Events) == 0
}
