package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
)

// DefaultAddress is the reserve holder of venues created without one.
const DefaultAddress domain.Address = "venue"

var (
	// ErrPairMismatch is returned when a swap doesn't match the venue's
	// current direction.
	ErrPairMismatch = errors.New("venue: unsupported pair")

	// ErrInsufficientReserve is returned when the venue can't pay out.
	ErrInsufficientReserve = errors.New("venue: insufficient reserve")

	// ErrZeroOutput is returned when a swap would pay nothing.
	ErrZeroOutput = errors.New("venue: zero output")
)

// FixedRate swaps one asset into another at a constant rate. It holds
// reserves of both assets under its address and swaps in one direction at a
// time; ChangeDirection flips it.
type FixedRate struct {
	address domain.Address

	mu   sync.Mutex
	rate decimal.Decimal
	from ports.Asset
	to   ports.Asset
}

// NewFixedRate creates a venue converting from into to at rate units of to
// per unit of from.
func NewFixedRate(address domain.Address, from, to ports.Asset, rate decimal.Decimal) (*FixedRate, error) {
	if address.IsZero() {
		address = DefaultAddress
	}
	if !rate.IsPositive() {
		return nil, fmt.Errorf("venue: rate must be positive, got %s", rate)
	}
	return &FixedRate{address: address, rate: rate, from: from, to: to}, nil
}

// Address returns the reserve holder and spender identity of the venue.
func (v *FixedRate) Address() domain.Address { return v.address }

// Rate returns the conversion rate.
func (v *FixedRate) Rate() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rate
}

// SetRate replaces the conversion rate for subsequent swaps.
func (v *FixedRate) SetRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("venue: rate must be positive, got %s", rate)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rate = rate
	return nil
}

// Pair returns the current direction.
func (v *FixedRate) Pair() (from, to ports.Asset) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.from, v.to
}

// ChangeDirection swaps the roles of the two assets.
func (v *FixedRate) ChangeDirection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.from, v.to = v.to, v.from
}

// Quote returns the output for amount without moving funds.
func (v *FixedRate) Quote(amount domain.Amount) (domain.Amount, error) {
	from, to := v.Pair()
	return convert(amount, v.Rate(), from.Decimals(), to.Decimals())
}

// Swap pulls req.Amount of the sell asset from req.Account and pays the
// converted amount of the buy asset from the venue's reserve.
func (v *FixedRate) Swap(ctx context.Context, req ports.SwapRequest) (domain.Amount, error) {
	from, to := v.Pair()
	if err := matchPair(from, to, req); err != nil {
		return domain.Amount{}, err
	}
	out, err := convert(req.Amount, v.Rate(), from.Decimals(), to.Decimals())
	if err != nil {
		return domain.Amount{}, err
	}
	if err := settle(ctx, v.address, req, out); err != nil {
		return domain.Amount{}, err
	}
	return out, nil
}

// convert returns amount × rate rescaled from fromDec to toDec decimals,
// truncated to base units.
func convert(amount domain.Amount, rate decimal.Decimal, fromDec, toDec uint8) (domain.Amount, error) {
	out := decimal.NewFromBigInt(amount.Big(), 0).
		Mul(rate).
		Shift(int32(toDec) - int32(fromDec)).
		Truncate(0)
	return domain.AmountFromBig(out.BigInt())
}

func matchPair(from, to ports.Asset, req ports.SwapRequest) error {
	if req.Sell == nil || req.Buy == nil {
		return fmt.Errorf("%w: missing asset", ErrPairMismatch)
	}
	if req.Sell.Symbol() != from.Symbol() || req.Buy.Symbol() != to.Symbol() {
		return fmt.Errorf("%w: %s->%s, venue converts %s->%s",
			ErrPairMismatch, req.Sell.Symbol(), req.Buy.Symbol(), from.Symbol(), to.Symbol())
	}
	return nil
}

// settle moves req.Amount of the sell asset from the account to the venue
// and out of the buy asset from the venue to the account. The reserve is
// checked before anything moves, and a failed payout hands the pulled
// amount back.
func settle(ctx context.Context, venue domain.Address, req ports.SwapRequest, out domain.Amount) error {
	if out.IsZero() {
		return ErrZeroOutput
	}
	reserve, err := req.Buy.BalanceOf(ctx, venue)
	if err != nil {
		return fmt.Errorf("read %s reserve: %w", req.Buy.Symbol(), err)
	}
	if reserve.Lt(out) {
		return fmt.Errorf("%w: %s reserve %s, owes %s", ErrInsufficientReserve, req.Buy.Symbol(), reserve, out)
	}
	if err := req.Sell.TransferFrom(ctx, venue, req.Account, venue, req.Amount); err != nil {
		return fmt.Errorf("pull %s: %w", req.Sell.Symbol(), err)
	}
	if err := req.Buy.Transfer(ctx, venue, req.Account, out); err != nil {
		if rerr := req.Sell.Transfer(ctx, venue, req.Account, req.Amount); rerr != nil {
			return fmt.Errorf("pay %s: %w; return %s: %w", req.Buy.Symbol(), err, req.Sell.Symbol(), rerr)
		}
		return fmt.Errorf("pay %s: %w", req.Buy.Symbol(), err)
	}
	return nil
}
