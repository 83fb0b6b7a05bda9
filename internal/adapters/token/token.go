// Package token provides an in-memory fungible token with allowance-based
// transfers. It backs the sandbox assets the ledger trades and can be
// persisted through Snapshot and Restore.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/dcaledger/internal/domain"
)

var (
	// ErrInsufficientBalance is returned when a holder can't cover a transfer.
	ErrInsufficientBalance = errors.New("token: transfer amount exceeds balance")

	// ErrInsufficientAllowance is returned when a spender's allowance can't
	// cover a transfer.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")

	// ErrZeroAddress is returned when a holder or spender is empty.
	ErrZeroAddress = errors.New("token: zero address")
)

// Book is the persisted form of a token.
type Book struct {
	Name       string                                              `json:"name"`
	Symbol     string                                              `json:"symbol"`
	Decimals   uint8                                               `json:"decimals"`
	Supply     domain.Amount                                       `json:"supply"`
	Balances   map[domain.Address]domain.Amount                    `json:"balances"`
	Allowances map[domain.Address]map[domain.Address]domain.Amount `json:"allowances,omitempty"`
}

// Token is a goroutine-safe in-memory fungible token.
type Token struct {
	mu         sync.RWMutex
	name       string
	symbol     string
	decimals   uint8
	supply     domain.Amount
	balances   map[domain.Address]domain.Amount
	allowances map[domain.Address]map[domain.Address]domain.Amount
}

// New creates a token with no holders.
func New(name, symbol string, decimals uint8) *Token {
	return &Token{
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[domain.Address]domain.Amount),
		allowances: make(map[domain.Address]map[domain.Address]domain.Amount),
	}
}

// FromBook recreates a token from its persisted form.
func FromBook(b Book) *Token {
	t := New(b.Name, b.Symbol, b.Decimals)
	t.Restore(b)
	return t
}

// Name returns the token name.
func (t *Token) Name() string { return t.name }

// Symbol returns the token ticker.
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the number of decimal places.
func (t *Token) Decimals() uint8 { return t.decimals }

// TotalSupply returns the amount minted so far.
func (t *Token) TotalSupply() domain.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply
}

// Mint creates amount new units held by to.
func (t *Token) Mint(_ context.Context, to domain.Address, amount domain.Amount) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	supply, err := t.supply.Add(amount)
	if err != nil {
		return fmt.Errorf("mint %s: %w", t.symbol, err)
	}
	bal, err := t.balances[to].Add(amount)
	if err != nil {
		return fmt.Errorf("mint %s: %w", t.symbol, err)
	}
	t.supply = supply
	t.balances[to] = bal
	return nil
}

// BalanceOf returns the holdings of owner.
func (t *Token) BalanceOf(_ context.Context, owner domain.Address) (domain.Amount, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[owner], nil
}

// Allowance returns the amount spender may still move on behalf of owner.
func (t *Token) Allowance(owner, spender domain.Address) domain.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowances[owner][spender]
}

// Approve sets the allowance owner grants to spender, replacing any
// previous value.
func (t *Token) Approve(_ context.Context, owner, spender domain.Address, amount domain.Amount) error {
	if owner.IsZero() || spender.IsZero() {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[domain.Address]domain.Amount)
	}
	if amount.IsZero() {
		delete(t.allowances[owner], spender)
		return nil
	}
	t.allowances[owner][spender] = amount
	return nil
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(_ context.Context, from, to domain.Address, amount domain.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves amount from one holder to another on behalf of
// spender, consuming spender's allowance. A holder moving its own funds
// needs no allowance.
func (t *Token) TransferFrom(_ context.Context, spender, from, to domain.Address, amount domain.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if spender == from {
		return t.move(from, to, amount)
	}

	allowed := t.allowances[from][spender]
	if allowed.Lt(amount) {
		return fmt.Errorf("%s: %s allowed %s, needs %s: %w", t.symbol, spender, allowed, amount, ErrInsufficientAllowance)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	rest, _ := allowed.Sub(amount)
	if rest.IsZero() {
		delete(t.allowances[from], spender)
	} else {
		t.allowances[from][spender] = rest
	}
	return nil
}

// move must be called with t.mu held.
func (t *Token) move(from, to domain.Address, amount domain.Amount) error {
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	bal := t.balances[from]
	if bal.Lt(amount) {
		return fmt.Errorf("%s: %s holds %s, needs %s: %w", t.symbol, from, bal, amount, ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	credited, err := t.balances[to].Add(amount)
	if err != nil {
		return fmt.Errorf("%s: credit %s: %w", t.symbol, to, err)
	}
	debited, _ := bal.Sub(amount)
	if debited.IsZero() {
		delete(t.balances, from)
	} else {
		t.balances[from] = debited
	}
	t.balances[to] = credited
	return nil
}

// Snapshot returns the token's persisted form.
func (t *Token) Snapshot() Book {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b := Book{
		Name:       t.name,
		Symbol:     t.symbol,
		Decimals:   t.decimals,
		Supply:     t.supply,
		Balances:   make(map[domain.Address]domain.Amount, len(t.balances)),
		Allowances: make(map[domain.Address]map[domain.Address]domain.Amount, len(t.allowances)),
	}
	for k, v := range t.balances {
		b.Balances[k] = v
	}
	for owner, spenders := range t.allowances {
		if len(spenders) == 0 {
			continue
		}
		m := make(map[domain.Address]domain.Amount, len(spenders))
		for s, v := range spenders {
			m[s] = v
		}
		b.Allowances[owner] = m
	}
	return b
}

// Restore replaces balances, allowances, and supply with those of b.
// Name, symbol, and decimals are left unchanged.
func (t *Token) Restore(b Book) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.supply = b.Supply
	t.balances = make(map[domain.Address]domain.Amount, len(b.Balances))
	for k, v := range b.Balances {
		t.balances[k] = v
	}
	t.allowances = make(map[domain.Address]map[domain.Address]domain.Amount, len(b.Allowances))
	for owner, spenders := range b.Allowances {
		m := make(map[domain.Address]domain.Amount, len(spenders))
		for s, v := range spenders {
			m[s] = v
		}
		t.allowances[owner] = m
	}
}
