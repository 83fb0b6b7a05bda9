package domain

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PriceDecimals is the fixed-point precision of per-unit prices.
const PriceDecimals = 18

// PriceScale is 10^PriceDecimals, the unit of a fixed-point price.
var PriceScale = Pow10(PriceDecimals)

// Amount is an unsigned 256-bit quantity expressed in base units.
// The zero value is 0 and ready to use.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n base units.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// Pow10 returns 10^exp as an Amount. exp must be below 78.
func Pow10(exp uint8) Amount {
	b := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	a, err := AmountFromBig(b)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBig converts a non-negative big.Int into an Amount.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("negative amount %s", b.String())
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *v}, nil
}

// ParseAmount parses a base-unit decimal integer string such as "1000000".
func ParseAmount(s string) (Amount, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("parse amount %q: not a decimal integer", s)
	}
	a, err := AmountFromBig(b)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return a, nil
}

// MustParseAmount is like ParseAmount but panics on error. Intended for
// constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits converts a human readable decimal ("100", "0.25") into base
// units of a token with the given number of decimals.
func ParseUnits(s string, decimals uint8) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse units %q: %w", s, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("parse units %q: negative value", s)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return Amount{}, fmt.Errorf("parse units %q: more than %d decimal places", s, decimals)
	}
	return AmountFromBig(shifted.BigInt())
}

// MustParseUnits is like ParseUnits but panics on error.
func MustParseUnits(s string, decimals uint8) Amount {
	a, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// FormatUnits renders the amount as a decimal string for a token with the
// given number of decimals, e.g. 1500000 with 6 decimals is "1.5".
func (a Amount) FormatUnits(decimals uint8) string {
	return a.Decimal(decimals).String()
}

// Decimal returns the amount as a shopspring decimal scaled by decimals.
func (a Amount) Decimal(decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(a.v.ToBig(), -int32(decimals))
}

// Big returns the amount as a new big.Int.
func (a Amount) Big() *big.Int {
	return a.v.ToBig()
}

// String returns the base-unit decimal representation.
func (a Amount) String() string {
	return a.v.ToBig().String()
}

// IsZero reports whether the amount is 0.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// Eq reports whether a == b.
func (a Amount) Eq(b Amount) bool {
	return a.v.Eq(&b.v)
}

// Lt reports whether a < b.
func (a Amount) Lt(b Amount) bool {
	return a.v.Lt(&b.v)
}

// Add returns a + b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var r Amount
	if _, overflow := r.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, fmt.Errorf("%s + %s: %w", a, b, ErrOverflow)
	}
	return r, nil
}

// Sub returns a - b or ErrOverflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var r Amount
	if _, underflow := r.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, fmt.Errorf("%s - %s: %w", a, b, ErrOverflow)
	}
	return r, nil
}

// Mul returns a * b or ErrOverflow.
func (a Amount) Mul(b Amount) (Amount, error) {
	var r Amount
	if _, overflow := r.v.MulOverflow(&a.v, &b.v); overflow {
		return Amount{}, fmt.Errorf("%s * %s: %w", a, b, ErrOverflow)
	}
	return r, nil
}

// MulUint64 returns a * n or ErrOverflow.
func (a Amount) MulUint64(n uint64) (Amount, error) {
	return a.Mul(NewAmount(n))
}

// MulDiv returns a * m / d, multiplying before dividing to keep precision.
// The intermediate product must fit in 256 bits.
func (a Amount) MulDiv(m, d Amount) (Amount, error) {
	if d.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	prod, err := a.Mul(m)
	if err != nil {
		return Amount{}, err
	}
	var r Amount
	r.v.Div(&prod.v, &d.v)
	return r, nil
}

// MarshalText encodes the amount as a base-unit decimal string.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a base-unit decimal string.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
