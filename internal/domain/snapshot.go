package domain

// Meta holds the scalar part of the ledger state.
type Meta struct {
	NextAllocationID uint64 `json:"next_allocation_id"`
	AggregateAmount  Amount `json:"aggregate_amount"`
	LastSeq          uint64 `json:"last_seq"`
	LastPeriod       uint64 `json:"last_period"`
}

// Snapshot is the complete ledger state. Sequence-indexed data is kept in
// sparse maps: a missing key reads as zero.
type Snapshot struct {
	Meta

	// Allocations is the allocation store keyed by id
	Allocations map[uint64]Allocation `json:"allocations"`

	// ScheduledRemoval maps a sequence number to the amount retired from the
	// aggregate once that execution completes
	ScheduledRemoval map[uint64]Amount `json:"scheduled_removal"`

	// CumulativePrice maps a sequence number to the running sum of
	// fixed-point prices up to and including that execution
	CumulativePrice map[uint64]Amount `json:"cumulative_price"`
}

// NewSnapshot returns an empty ledger state with CumulativePrice[0] = 0.
func NewSnapshot() Snapshot {
	return Snapshot{
		Allocations:      make(map[uint64]Allocation),
		ScheduledRemoval: make(map[uint64]Amount),
		CumulativePrice:  map[uint64]Amount{0: {}},
	}
}

// IsEmpty returns true if the state has never been initialized.
func (s Snapshot) IsEmpty() bool {
	return s.NextAllocationID == 0 && s.LastSeq == 0 && s.LastPeriod == 0 &&
		s.AggregateAmount.IsZero() && len(s.Allocations) == 0
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	c := NewSnapshot()
	c.Meta = s.Meta
	for k, v := range s.Allocations {
		c.Allocations[k] = v
	}
	for k, v := range s.ScheduledRemoval {
		c.ScheduledRemoval[k] = v
	}
	for k, v := range s.CumulativePrice {
		c.CumulativePrice[k] = v
	}
	return c
}

// Apply folds a committed changeset into the snapshot.
func (s *Snapshot) Apply(cs Changeset) {
	if s.Allocations == nil || s.ScheduledRemoval == nil || s.CumulativePrice == nil {
		fresh := NewSnapshot()
		fresh.Meta = s.Meta
		for k, v := range s.Allocations {
			fresh.Allocations[k] = v
		}
		for k, v := range s.ScheduledRemoval {
			fresh.ScheduledRemoval[k] = v
		}
		for k, v := range s.CumulativePrice {
			fresh.CumulativePrice[k] = v
		}
		*s = fresh
	}

	s.Meta = cs.Meta
	for _, a := range cs.Allocations {
		s.Allocations[a.ID] = a
	}
	for _, id := range cs.DeletedAllocations {
		delete(s.Allocations, id)
	}
	for seq, amt := range cs.ScheduledRemovals {
		if amt.IsZero() {
			delete(s.ScheduledRemoval, seq)
			continue
		}
		s.ScheduledRemoval[seq] = amt
	}
	for seq, amt := range cs.CumulativePrices {
		s.CumulativePrice[seq] = amt
	}
}
