package ports

import (
	"context"

	"github.com/bft-labs/dcaledger/internal/domain"
)

// Asset is a fungible token with allowance-based transfers.
type Asset interface {
	// Symbol returns the ticker, e.g. "USDC".
	Symbol() string

	// Decimals returns the number of decimal places of one whole unit.
	Decimals() uint8

	// BalanceOf returns the holdings of owner in base units.
	BalanceOf(ctx context.Context, owner domain.Address) (domain.Amount, error)

	// Transfer moves amount from one holder to another.
	Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) error

	// TransferFrom moves amount on behalf of from, consuming the allowance
	// from granted to spender.
	TransferFrom(ctx context.Context, spender, from, to domain.Address, amount domain.Amount) error

	// Approve sets the allowance owner grants to spender.
	Approve(ctx context.Context, owner, spender domain.Address, amount domain.Amount) error
}
