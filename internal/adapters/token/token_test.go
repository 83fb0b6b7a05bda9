package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/dcaledger/internal/domain"
)

func TestMintAndTransfer(t *testing.T) {
	ctx := context.Background()
	tkn := New("Token A", "TKN-A", 18)

	require.NoError(t, tkn.Mint(ctx, "alice", domain.NewAmount(100)))
	require.NoError(t, tkn.Transfer(ctx, "alice", "bob", domain.NewAmount(40)))

	alice, _ := tkn.BalanceOf(ctx, "alice")
	bob, _ := tkn.BalanceOf(ctx, "bob")
	assert.Equal(t, domain.NewAmount(60), alice)
	assert.Equal(t, domain.NewAmount(40), bob)
	assert.Equal(t, domain.NewAmount(100), tkn.TotalSupply())

	err := tkn.Transfer(ctx, "bob", "alice", domain.NewAmount(41))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	tkn := New("Token A", "TKN-A", 18)
	require.NoError(t, tkn.Mint(ctx, "alice", domain.NewAmount(100)))

	err := tkn.TransferFrom(ctx, "ledger", "alice", "ledger", domain.NewAmount(10))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, tkn.Approve(ctx, "alice", "ledger", domain.NewAmount(30)))
	require.NoError(t, tkn.TransferFrom(ctx, "ledger", "alice", "ledger", domain.NewAmount(10)))
	assert.Equal(t, domain.NewAmount(20), tkn.Allowance("alice", "ledger"))

	require.NoError(t, tkn.TransferFrom(ctx, "ledger", "alice", "ledger", domain.NewAmount(20)))
	assert.True(t, tkn.Allowance("alice", "ledger").IsZero())

	bal, _ := tkn.BalanceOf(ctx, "ledger")
	assert.Equal(t, domain.NewAmount(30), bal)
}

func TestTransferFromKeepsAllowanceOnShortBalance(t *testing.T) {
	ctx := context.Background()
	tkn := New("Token A", "TKN-A", 18)
	require.NoError(t, tkn.Mint(ctx, "alice", domain.NewAmount(5)))
	require.NoError(t, tkn.Approve(ctx, "alice", "ledger", domain.NewAmount(30)))

	err := tkn.TransferFrom(ctx, "ledger", "alice", "ledger", domain.NewAmount(10))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, domain.NewAmount(30), tkn.Allowance("alice", "ledger"))
}

func TestZeroAddress(t *testing.T) {
	ctx := context.Background()
	tkn := New("Token A", "TKN-A", 18)
	assert.ErrorIs(t, tkn.Mint(ctx, "", domain.NewAmount(1)), ErrZeroAddress)
	assert.ErrorIs(t, tkn.Approve(ctx, "alice", "", domain.NewAmount(1)), ErrZeroAddress)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	tkn := New("Token A", "TKN-A", 6)
	require.NoError(t, tkn.Mint(ctx, "alice", domain.NewAmount(100)))
	require.NoError(t, tkn.Approve(ctx, "alice", "ledger", domain.NewAmount(7)))

	book := tkn.Snapshot()
	restored := FromBook(book)

	assert.Equal(t, "TKN-A", restored.Symbol())
	assert.Equal(t, uint8(6), restored.Decimals())
	bal, _ := restored.BalanceOf(ctx, "alice")
	assert.Equal(t, domain.NewAmount(100), bal)
	assert.Equal(t, domain.NewAmount(7), restored.Allowance("alice", "ledger"))
	assert.Equal(t, domain.NewAmount(100), restored.TotalSupply())

	// the snapshot is detached from the live token
	require.NoError(t, tkn.Transfer(ctx, "alice", "bob", domain.NewAmount(1)))
	assert.Equal(t, domain.NewAmount(100), book.Balances["alice"])
}
