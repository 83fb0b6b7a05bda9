package domain

// Address identifies a participant, the ledger account, or a venue.
type Address string

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return a == ""
}

// Allocation is one recurring-purchase commitment.
// Amount is sold at every execution in [StartSeq, EndSeq].
type Allocation struct {
	// ID is assigned from the ledger's counter and never reused
	ID uint64 `json:"id"`

	// Owner is the only identity allowed to exit the allocation
	Owner Address `json:"owner"`

	// Amount is the fixed per-execution sell quantity
	Amount Amount `json:"amount"`

	// StartSeq is the first execution this allocation participates in
	StartSeq uint64 `json:"start_seq"`

	// EndSeq is the last execution this allocation participates in
	EndSeq uint64 `json:"end_seq"`
}

// IsZero reports whether a is the store's default value, which is what
// lookups of unknown or exited ids return.
func (a Allocation) IsZero() bool {
	return a.Owner.IsZero() && a.Amount.IsZero() && a.StartSeq == 0 && a.EndSeq == 0
}

// Executions returns the number of executions the allocation spans.
func (a Allocation) Executions() uint64 {
	if a.IsZero() {
		return 0
	}
	return a.EndSeq - a.StartSeq + 1
}

// Effective returns the last sequence number that has priced this
// allocation given the ledger's lastSeq: min(EndSeq, lastSeq).
// A result below StartSeq means no execution has covered it yet.
func (a Allocation) Effective(lastSeq uint64) uint64 {
	if lastSeq < a.EndSeq {
		return lastSeq
	}
	return a.EndSeq
}

// Consumed returns how many of the allocation's executions have completed.
func (a Allocation) Consumed(lastSeq uint64) uint64 {
	eff := a.Effective(lastSeq)
	if eff < a.StartSeq {
		return 0
	}
	return eff - a.StartSeq + 1
}

// Pending returns how many of the allocation's executions are still ahead.
func (a Allocation) Pending(lastSeq uint64) uint64 {
	eff := a.Effective(lastSeq)
	if eff < a.StartSeq {
		return a.EndSeq - a.StartSeq + 1
	}
	return a.EndSeq - eff
}
