package staking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/balance"
	"github.com/Mindburn-Labs/tokenledger/pkg/staking"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/transfer"
	"github.com/Mindburn-Labs/tokenledger/pkg/txlog"
)

const (
	staker      = token.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	other       = token.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	treasury    = token.Address("0xfffffffffffffffffffffffffffffffffffffff0")
	rewardsPool = token.Address("0xfffffffffffffffffffffffffffffffffffffff1")
)

type fixture struct {
	manager  *staking.Manager
	balances *balance.MemoryStore
	log      *txlog.Log
	now      time.Time
	setNow   func(time.Time)
}

func newFixture(t *testing.T, poolTokens uint64) *fixture {
	t.Helper()
	balances := balance.NewMemoryStore()
	log := txlog.NewLog()
	engine := transfer.NewEngine(balances, log, transfer.Params{Treasury: treasury})

	ctx := context.Background()
	_, err := engine.Mint(ctx, staker, amount.FromTokens(10_000))
	require.NoError(t, err)
	if poolTokens > 0 {
		_, err = engine.Mint(ctx, rewardsPool, amount.FromTokens(poolTokens))
		require.NoError(t, err)
	}

	f := &fixture{
		balances: balances,
		log:      log,
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.setNow = func(tm time.Time) { f.now = tm }
	f.manager = staking.NewManager(engine.WithClock(clock), staking.Params{RewardsPool: rewardsPool}).WithClock(clock)
	return f
}

func TestStakeLocksBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	pos, err := f.manager.Stake(ctx, staker, amount.FromTokens(1000), "pool-a", 30)
	require.NoError(t, err)
	assert.True(t, pos.Active)
	assert.Equal(t, f.now.Add(30*24*time.Hour), pos.UnlockTime)

	acc, _ := f.balances.Get(ctx, staker)
	assert.True(t, acc.Balance.Equal(amount.FromTokens(10_000)), "staking locks, it does not spend")
	assert.True(t, acc.LockedBalance.Equal(amount.FromTokens(1000)))
	assert.True(t, acc.Available().Equal(amount.FromTokens(9000)))

	// Locked funds cannot be staked again.
	_, err = f.manager.Stake(ctx, staker, amount.FromTokens(9500), "pool-a", 30)
	assert.ErrorIs(t, err, token.ErrInsufficientAvailableBalance)
}

func TestStakeValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	_, err := f.manager.Stake(ctx, "bad", amount.FromTokens(1), "p", 30)
	assert.ErrorIs(t, err, token.ErrInvalidAddress)

	_, err = f.manager.Stake(ctx, staker, amount.Zero(), "p", 30)
	assert.ErrorIs(t, err, token.ErrNonPositiveAmount)

	_, err = f.manager.Stake(ctx, staker, amount.FromTokens(1), "p", 0)
	assert.ErrorIs(t, err, token.ErrNonPositiveAmount)
}

func TestUnstakeBeforeUnlockFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	pos, err := f.manager.Stake(ctx, staker, amount.FromTokens(1000), "pool-a", 30)
	require.NoError(t, err)

	// Day 29: still locked.
	f.setNow(f.now.Add(29 * 24 * time.Hour))
	_, err = f.manager.Unstake(ctx, pos.ID, staker)
	assert.ErrorIs(t, err, token.ErrNotYetUnlockable)

	got, err := f.manager.Get(pos.ID)
	require.NoError(t, err)
	assert.True(t, got.Active, "a failed unstake leaves the position open")
}

func TestUnstakeAtMaturityPaysReward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	start := f.now

	pos, err := f.manager.Stake(ctx, staker, amount.FromTokens(1000), "pool-a", 30)
	require.NoError(t, err)

	f.setNow(start.Add(30 * 24 * time.Hour))
	payout, err := f.manager.Unstake(ctx, pos.ID, staker)
	require.NoError(t, err)

	// 1000 tokens at 5% APY for 30 days: 1000 * 500*30 / (10000*365).
	wantReward := amount.FromTokens(1000).MulDiv(500*30, 10_000*365)
	assert.True(t, payout.Equal(amount.FromTokens(1000).Add(wantReward)),
		"payout %s, want principal+%s", payout, wantReward)

	acc, _ := f.balances.Get(ctx, staker)
	assert.True(t, acc.LockedBalance.IsZero())
	assert.True(t, acc.Balance.Equal(amount.FromTokens(10_000).Add(wantReward)))

	pool, _ := f.balances.Get(ctx, rewardsPool)
	wantPool, _ := amount.FromTokens(1000).Sub(wantReward)
	assert.True(t, pool.Balance.Equal(wantPool), "reward comes out of the pool")

	// Conservation holds: rewards move value, they never create it.
	accounts, sup, err := f.balances.Snapshot(ctx)
	require.NoError(t, err)
	total := amount.Zero()
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	assert.True(t, total.Add(sup.Burned).Equal(sup.Minted))
}

func TestUnstakeTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	pos, err := f.manager.Stake(ctx, staker, amount.FromTokens(100), "pool-a", 1)
	require.NoError(t, err)

	f.setNow(f.now.Add(48 * time.Hour))
	_, err = f.manager.Unstake(ctx, pos.ID, staker)
	require.NoError(t, err)

	_, err = f.manager.Unstake(ctx, pos.ID, staker)
	assert.ErrorIs(t, err, token.ErrAlreadyClaimed)
}

func TestUnstakeAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	pos, err := f.manager.Stake(ctx, staker, amount.FromTokens(100), "pool-a", 1)
	require.NoError(t, err)

	_, err = f.manager.Unstake(ctx, pos.ID, other)
	assert.ErrorIs(t, err, token.ErrNotAuthorized)

	_, err = f.manager.Unstake(ctx, "no-such-position", staker)
	assert.ErrorIs(t, err, token.ErrPositionNotFound)
}

func TestUnstakeCapsRewardAtPoolBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0) // empty rewards pool

	pos, err := f.manager.Stake(ctx, staker, amount.FromTokens(1000), "pool-a", 30)
	require.NoError(t, err)

	f.setNow(f.now.Add(60 * 24 * time.Hour))
	payout, err := f.manager.Unstake(ctx, pos.ID, staker)
	require.NoError(t, err)
	assert.True(t, payout.Equal(amount.FromTokens(1000)),
		"an empty pool still returns the principal, with zero reward")
}

func TestStakeAppearsOnTransactionLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	pos, err := f.manager.Stake(ctx, staker, amount.FromTokens(500), "pool-a", 7)
	require.NoError(t, err)

	entries, err := f.log.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, token.TxStake, entries[0].Tx.Type)
	assert.Equal(t, token.TxConfirmed, entries[0].Tx.Status)
	assert.Equal(t, pos.ID, entries[0].Tx.Metadata["position_id"])
}

func TestRejectedUnstakeAppearsOnTransactionLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	latest := func() txlog.Entry {
		entries, err := f.log.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		return entries[0]
	}

	pos, err := f.manager.Stake(ctx, staker, amount.FromTokens(100), "pool-a", 1)
	require.NoError(t, err)

	_, err = f.manager.Unstake(ctx, "no-such-position", staker)
	require.ErrorIs(t, err, token.ErrPositionNotFound)
	e := latest()
	assert.Equal(t, token.TxUnstake, e.Tx.Type)
	assert.Equal(t, token.TxFailed, e.Tx.Status)
	assert.Equal(t, token.ErrPositionNotFound.Error(), e.Tx.Metadata[token.MetaError])
	assert.Equal(t, "no-such-position", e.Tx.Metadata["position_id"])

	_, err = f.manager.Unstake(ctx, pos.ID, other)
	require.ErrorIs(t, err, token.ErrNotAuthorized)
	e = latest()
	assert.Equal(t, token.TxFailed, e.Tx.Status)
	assert.Equal(t, token.ErrNotAuthorized.Error(), e.Tx.Metadata[token.MetaError])

	f.setNow(f.now.Add(48 * time.Hour))
	_, err = f.manager.Unstake(ctx, pos.ID, staker)
	require.NoError(t, err)

	_, err = f.manager.Unstake(ctx, pos.ID, staker)
	require.ErrorIs(t, err, token.ErrAlreadyClaimed)
	e = latest()
	assert.Equal(t, token.TxFailed, e.Tx.Status)
	assert.Equal(t, token.ErrAlreadyClaimed.Error(), e.Tx.Metadata[token.MetaError])
}

func TestForAddress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	_, err := f.manager.Stake(ctx, staker, amount.FromTokens(100), "pool-a", 7)
	require.NoError(t, err)
	_, err = f.manager.Stake(ctx, staker, amount.FromTokens(200), "pool-b", 14)
	require.NoError(t, err)

	assert.Len(t, f.manager.ForAddress(staker), 2)
	assert.Empty(t, f.manager.ForAddress(other))
}
