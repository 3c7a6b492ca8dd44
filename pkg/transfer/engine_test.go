package transfer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/balance"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/transfer"
	"github.com/Mindburn-Labs/tokenledger/pkg/txlog"
)

const (
	alice    = token.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob      = token.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	treasury = token.Address("0xfffffffffffffffffffffffffffffffffffffff0")
)

func newEngine(t *testing.T) (*transfer.Engine, *balance.MemoryStore, *txlog.Log) {
	t.Helper()
	balances := balance.NewMemoryStore()
	log := txlog.NewLog()
	engine := transfer.NewEngine(balances, log, transfer.Params{
		Treasury:  treasury,
		MaxSupply: amount.FromTokens(1_000_000),
	})
	return engine, balances, log
}

func fund(t *testing.T, engine *transfer.Engine, addr token.Address, tokens uint64) {
	t.Helper()
	_, err := engine.Mint(context.Background(), addr, amount.FromTokens(tokens))
	require.NoError(t, err)
}

func TestTransferFeeAndBurnSplit(t *testing.T) {
	ctx := context.Background()
	engine, balances, _ := newEngine(t)
	fund(t, engine, alice, 2000)

	receipt, effects, err := engine.Transfer(ctx, alice, bob, amount.FromTokens(1000), nil)
	require.NoError(t, err)

	// 1000 at 0.1% fee and 0.01% burn: net 998.9, fee 1.0, burned 0.1.
	assert.Equal(t, amount.MustParse("998.9").BaseUnits(), receipt.NetAmount.BaseUnits())
	assert.Equal(t, amount.MustParse("1.0").BaseUnits(), receipt.Fee.BaseUnits())
	assert.Equal(t, amount.MustParse("0.1").BaseUnits(), receipt.Burned.BaseUnits())

	accA, _ := balances.Get(ctx, alice)
	accB, _ := balances.Get(ctx, bob)
	accT, _ := balances.Get(ctx, treasury)
	assert.True(t, accA.Balance.Equal(amount.FromTokens(1000)))
	assert.Equal(t, amount.MustParse("998.9").BaseUnits(), accB.Balance.BaseUnits())
	assert.Equal(t, amount.MustParse("1.0").BaseUnits(), accT.Balance.BaseUnits())

	sup, _ := balances.Supply(ctx)
	assert.Equal(t, amount.MustParse("0.1").BaseUnits(), sup.Burned.BaseUnits())

	require.Len(t, effects, 1)
	fn, ok := effects[0].(transfer.FeeNotification)
	require.True(t, ok)
	assert.Equal(t, receipt.TransactionID, fn.TransactionID)
	assert.Equal(t, alice, fn.Payer)
	assert.True(t, fn.Fee.Equal(receipt.Fee))
}

func TestTransferConservation(t *testing.T) {
	ctx := context.Background()
	engine, balances, _ := newEngine(t)
	fund(t, engine, alice, 5000)

	for i := 0; i < 10; i++ {
		_, _, err := engine.Transfer(ctx, alice, bob, amount.MustParse("123.456"), nil)
		require.NoError(t, err)
	}

	accounts, sup, err := balances.Snapshot(ctx)
	require.NoError(t, err)
	total := amount.Zero()
	for _, acc := range accounts {
		total = total.Add(acc.Balance)
	}
	assert.True(t, total.Add(sup.Burned).Equal(sup.Minted),
		"conservation violated: sum=%s burned=%s minted=%s", total, sup.Burned, sup.Minted)
}

func TestTransferPreconditionOrder(t *testing.T) {
	ctx := context.Background()
	engine, balances, _ := newEngine(t)
	fund(t, engine, alice, 100)
	require.NoError(t, balances.Apply(ctx, balance.Lock(alice, amount.FromTokens(60))))

	tests := []struct {
		name string
		from token.Address
		to   token.Address
		amt  amount.Amount
		want error
	}{
		{name: "invalid sender", from: "bogus", to: bob, amt: amount.FromTokens(1), want: token.ErrInvalidAddress},
		{name: "invalid recipient", from: alice, to: "0xshort", amt: amount.FromTokens(1), want: token.ErrInvalidAddress},
		{name: "self transfer", from: alice, to: alice, amt: amount.FromTokens(1), want: token.ErrSameAddress},
		{name: "zero amount", from: alice, to: bob, amt: amount.Zero(), want: token.ErrNonPositiveAmount},
		{name: "over balance", from: alice, to: bob, amt: amount.FromTokens(500), want: token.ErrInsufficientBalance},
		{name: "over available", from: alice, to: bob, amt: amount.FromTokens(80), want: token.ErrInsufficientAvailableBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := engine.Transfer(ctx, tt.from, tt.to, tt.amt, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFailedTransferLeavesBalancesUntouched(t *testing.T) {
	ctx := context.Background()
	engine, balances, log := newEngine(t)
	fund(t, engine, alice, 100)

	before, _ := balances.Get(ctx, alice)
	_, _, err := engine.Transfer(ctx, alice, bob, amount.FromTokens(500), token.Metadata{"memo": "too much"})
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	after, _ := balances.Get(ctx, alice)
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, before.TransactionCount, after.TransactionCount)

	// The attempt is still on the log, marked failed with the reason.
	entries, err := log.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, token.TxFailed, entries[0].Tx.Status)
	assert.Equal(t, token.TxTransfer, entries[0].Tx.Type)
	assert.Contains(t, entries[0].Tx.Metadata[token.MetaError], "insufficient balance")
	assert.Equal(t, "too much", entries[0].Tx.Metadata["memo"])
}

func TestTransferRecordsConfirmedEntry(t *testing.T) {
	ctx := context.Background()
	engine, _, log := newEngine(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.WithClock(func() time.Time { return fixed })
	fund(t, engine, alice, 100)

	receipt, _, err := engine.Transfer(ctx, alice, bob, amount.FromTokens(10), nil)
	require.NoError(t, err)

	e, err := log.Get(ctx, receipt.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, token.TxConfirmed, e.Tx.Status)
	assert.Equal(t, receipt.Hash, e.Tx.Hash)
	assert.True(t, e.Tx.Timestamp.Equal(fixed))
	assert.True(t, e.Tx.Amount.Equal(amount.FromTokens(10)))
	assert.True(t, e.Tx.Fee.Equal(receipt.Fee))
	assert.True(t, e.Tx.Burned.Equal(receipt.Burned))
}

func TestMintRespectsMaxSupply(t *testing.T) {
	ctx := context.Background()
	balances := balance.NewMemoryStore()
	log := txlog.NewLog()
	engine := transfer.NewEngine(balances, log, transfer.Params{
		Treasury:  treasury,
		MaxSupply: amount.FromTokens(1000),
	})

	_, err := engine.Mint(ctx, alice, amount.FromTokens(900))
	require.NoError(t, err)

	_, err = engine.Mint(ctx, alice, amount.FromTokens(200))
	assert.ErrorIs(t, err, token.ErrSupplyExceeded)

	// The rejection is on the log too.
	entries, _ := log.List(ctx, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, token.TxFailed, entries[0].Tx.Status)
	assert.Equal(t, token.TxMint, entries[0].Tx.Type)

	// Filling up to the cap exactly is fine.
	_, err = engine.Mint(ctx, alice, amount.FromTokens(100))
	assert.NoError(t, err)
}

func TestMintValidation(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newEngine(t)

	_, err := engine.Mint(ctx, "invalid", amount.FromTokens(1))
	assert.ErrorIs(t, err, token.ErrInvalidAddress)

	_, err = engine.Mint(ctx, alice, amount.Zero())
	assert.ErrorIs(t, err, token.ErrNonPositiveAmount)
}

func TestBurnRemovesFromCirculation(t *testing.T) {
	ctx := context.Background()
	engine, balances, _ := newEngine(t)
	fund(t, engine, alice, 1000)

	receipt, err := engine.Burn(ctx, alice, amount.FromTokens(100))
	require.NoError(t, err)
	assert.True(t, receipt.Burned.Equal(amount.FromTokens(100)))

	acc, _ := balances.Get(ctx, alice)
	assert.True(t, acc.Balance.Equal(amount.FromTokens(900)))

	sup, _ := balances.Supply(ctx)
	assert.True(t, sup.Burned.Equal(amount.FromTokens(100)))
	assert.True(t, sup.Circulating().Equal(amount.FromTokens(900)))

	_, err = engine.Burn(ctx, alice, amount.FromTokens(10_000))
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
}

func TestMetadataValidationFailsTransfer(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newEngine(t)
	fund(t, engine, alice, 100)

	meta := make(token.Metadata)
	for i := 0; i < token.MaxMetadataKeys+1; i++ {
		meta[string(rune('a'+i))] = "v"
	}
	_, _, err := engine.Transfer(ctx, alice, bob, amount.FromTokens(1), meta)
	assert.ErrorIs(t, err, token.ErrMetadataTooLarge)
}
