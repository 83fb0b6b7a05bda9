package domain

import "time"

// EventKind names the operation that produced an event.
type EventKind string

const (
	EventEnter   EventKind = "enter"
	EventExecute EventKind = "execute"
	EventExit    EventKind = "exit"
)

// EnterEvent is emitted when an allocation is created.
type EnterEvent struct {
	ID       uint64  `json:"id"`
	Owner    Address `json:"owner"`
	Amount   Amount  `json:"amount"`
	StartSeq uint64  `json:"start_seq"`
	EndSeq   uint64  `json:"end_seq"`
}

// ExecuteEvent is emitted when the pooled installment is converted.
type ExecuteEvent struct {
	Seq    uint64 `json:"seq"`
	Period uint64 `json:"period"`
	Sold   Amount `json:"sold"`
	Bought Amount `json:"bought"`
	Price  Amount `json:"price"`
}

// ExitEvent is emitted when an allocation is retired by its owner.
type ExitEvent struct {
	ID                 uint64  `json:"id"`
	Owner              Address `json:"owner"`
	ExecutionsConsumed uint64  `json:"executions_consumed"`
	Refunded           Amount  `json:"refunded"`
	Credited           Amount  `json:"credited"`

	// CreditPending is set when the refund was paid but the credit was not;
	// the allocation then remains until a later exit pays the credit
	CreditPending bool `json:"credit_pending,omitempty"`
}

// Event is the journal envelope for one ledger event. Exactly one of the
// payload pointers is set, matching Kind.
type Event struct {
	// ID is assigned when the event is journaled
	ID string `json:"id,omitempty"`

	Kind EventKind `json:"kind"`

	// Seq is the ledger's last sequence number after the operation
	Seq uint64 `json:"seq"`

	// At is the wall-clock time the operation was committed
	At time.Time `json:"at"`

	Enter   *EnterEvent   `json:"enter,omitempty"`
	Execute *ExecuteEvent `json:"execute,omitempty"`
	Exit    *ExitEvent    `json:"exit,omitempty"`
}
