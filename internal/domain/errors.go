package domain

import "errors"

// Domain errors represent the rejection reasons of ledger operations.
// They are returned wrapped by the public API and can be checked with errors.Is.
var (
	// ErrAmountZero is returned when an allocation is entered with a zero amount.
	ErrAmountZero = errors.New("dcaledger: amount can't be 0")

	// ErrCountZero is returned when an allocation is entered with zero executions.
	ErrCountZero = errors.New("dcaledger: number of executions can't be 0")

	// ErrInvalidOwner is returned when an allocation is entered without an owner.
	ErrInvalidOwner = errors.New("dcaledger: owner is required")

	// ErrDecimalsMismatch is returned at construction when an asset does not
	// report the expected decimal precision.
	ErrDecimalsMismatch = errors.New("dcaledger: asset decimals mismatch")

	// ErrInsufficientDeposit is returned when the upfront deposit can't be pulled.
	ErrInsufficientDeposit = errors.New("dcaledger: insufficient deposit")

	// ErrNotOwner is returned when a caller exits an allocation it doesn't own.
	ErrNotOwner = errors.New("dcaledger: caller is not the allocation owner")

	// ErrAlreadyRanThisPeriod is returned when execute is called twice in one period.
	ErrAlreadyRanThisPeriod = errors.New("dcaledger: already executed this period")

	// ErrNothingToSell is returned when execute is called with no active installment.
	ErrNothingToSell = errors.New("dcaledger: nothing to sell")

	// ErrConversionFailed wraps failures of the conversion venue.
	ErrConversionFailed = errors.New("dcaledger: conversion failed")

	// ErrInsufficientHoldings is returned when the ledger account can't cover a payout.
	ErrInsufficientHoldings = errors.New("dcaledger: insufficient ledger holdings")

	// ErrPayoutIncomplete is returned by exit when the refund was paid but the
	// credit was not. The refund is recorded and the allocation owes only the credit.
	ErrPayoutIncomplete = errors.New("dcaledger: payout incomplete")

	// ErrReentrantCall is returned when a ledger operation is invoked while
	// another one is still in flight on the same ledger.
	ErrReentrantCall = errors.New("dcaledger: reentrant call")

	// ErrOverflow is returned when fixed-point arithmetic leaves the uint256 range.
	ErrOverflow = errors.New("dcaledger: arithmetic overflow")

	// ErrDivisionByZero is returned when a fixed-point division has a zero divisor.
	ErrDivisionByZero = errors.New("dcaledger: division by zero")
)
