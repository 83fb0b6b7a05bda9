package ports

import (
	"context"

	"github.com/bft-labs/dcaledger/internal/domain"
)

// SwapRequest describes one conversion.
type SwapRequest struct {
	// Account is the holder selling Sell and receiving Buy. It has approved
	// the venue for at least Amount.
	Account domain.Address

	Sell   Asset
	Buy    Asset
	Amount domain.Amount
}

// Venue converts one asset into another.
type Venue interface {
	// Address is the identity the selling account approves before a swap.
	Address() domain.Address

	// Swap pulls req.Amount of req.Sell from req.Account and pays the
	// returned amount of req.Buy to it.
	Swap(ctx context.Context, req SwapRequest) (domain.Amount, error)
}
