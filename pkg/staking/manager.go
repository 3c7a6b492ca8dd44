// Package staking implements time-locked balance commitments with reward
// accrual. Rewards are conservation-preserving: they are paid out of a
// dedicated rewards-pool account funded at genesis, never minted. If the
// pool cannot cover an accrued reward, the payout is capped at what the pool
// holds; the principal is always returned in full.
package staking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/balance"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/transfer"
)

// DefaultAPYBps is the default annual reward rate in basis points (5%).
const DefaultAPYBps = 500

// Params configures the staking manager.
type Params struct {
	APYBps      uint32
	RewardsPool token.Address
}

// Manager creates and settles staking positions.
type Manager struct {
	mu        sync.Mutex
	engine    *transfer.Engine
	positions map[string]*token.StakingPosition
	params    Params
	clock     func() time.Time
	logger    *slog.Logger
}

// NewManager creates a staking manager over the transfer engine's balance
// store and transaction log.
func NewManager(engine *transfer.Engine, params Params) *Manager {
	if params.APYBps == 0 {
		params.APYBps = DefaultAPYBps
	}
	return &Manager{
		engine:    engine,
		positions: make(map[string]*token.StakingPosition),
		params:    params,
		clock:     time.Now,
		logger:    slog.Default().With("component", "staking"),
	}
}

// WithClock overrides the clock for testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Stake locks amt of the address's free balance into a new position that
// unlocks after lockDays.
func (m *Manager) Stake(ctx context.Context, addr token.Address, amt amount.Amount, poolID string, lockDays int) (*token.StakingPosition, error) {
	err := func() error {
		if err := addr.Validate(); err != nil {
			return err
		}
		if !amt.IsPositive() {
			return token.ErrNonPositiveAmount
		}
		if lockDays <= 0 {
			return token.ErrNonPositiveAmount
		}
		return nil
	}()
	if err != nil {
		m.engine.Record(ctx, token.TxStake, addr, "", amt, token.TxFailed, token.Metadata(nil).WithError(err))
		return nil, err
	}

	if err := m.engine.Balances().Apply(ctx, balance.Lock(addr, amt)); err != nil {
		m.engine.Record(ctx, token.TxStake, addr, "", amt, token.TxFailed, token.Metadata(nil).WithError(err))
		return nil, err
	}

	now := m.clock()
	pos := &token.StakingPosition{
		ID:         uuid.New().String(),
		Address:    addr,
		Amount:     amt,
		PoolID:     poolID,
		StartTime:  now,
		UnlockTime: now.Add(time.Duration(lockDays) * 24 * time.Hour),
		Rewards:    amount.Zero(),
		Active:     true,
	}
	m.mu.Lock()
	m.positions[pos.ID] = pos
	m.mu.Unlock()

	m.engine.Record(ctx, token.TxStake, addr, "", amt, token.TxConfirmed,
		token.Metadata{"position_id": pos.ID, "pool_id": poolID})
	return pos, nil
}

// Unstake settles a matured position: unlocks the principal, pays the
// accrued reward from the rewards pool, and marks the position permanently
// inactive. Concurrent unstakes of one position are serialized so at most
// one succeeds.
func (m *Manager) Unstake(ctx context.Context, positionID string, caller token.Address) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[positionID]
	if !ok {
		m.engine.Record(ctx, token.TxUnstake, "", caller, amount.Zero(), token.TxFailed,
			token.Metadata{"position_id": positionID}.WithError(token.ErrPositionNotFound))
		return amount.Zero(), token.ErrPositionNotFound
	}
	if caller != pos.Address {
		m.engine.Record(ctx, token.TxUnstake, "", caller, pos.Amount, token.TxFailed,
			token.Metadata{"position_id": pos.ID}.WithError(token.ErrNotAuthorized))
		return amount.Zero(), token.ErrNotAuthorized
	}
	if !pos.Active {
		m.engine.Record(ctx, token.TxUnstake, "", pos.Address, pos.Amount, token.TxFailed,
			token.Metadata{"position_id": pos.ID}.WithError(token.ErrAlreadyClaimed))
		return amount.Zero(), token.ErrAlreadyClaimed
	}
	now := m.clock()
	if now.Before(pos.UnlockTime) {
		m.engine.Record(ctx, token.TxUnstake, "", pos.Address, pos.Amount, token.TxFailed,
			token.Metadata{"position_id": pos.ID}.WithError(token.ErrNotYetUnlockable))
		return amount.Zero(), token.ErrNotYetUnlockable
	}

	reward := m.accrued(ctx, pos, now)
	changes := []balance.Change{balance.Unlock(pos.Address, pos.Amount)}
	if reward.IsPositive() {
		changes = append(changes,
			balance.Debit(m.params.RewardsPool, reward),
			balance.Credit(pos.Address, reward))
	}
	if err := m.engine.Balances().Apply(ctx, changes...); err != nil {
		m.engine.Record(ctx, token.TxUnstake, "", pos.Address, pos.Amount, token.TxFailed,
			token.Metadata{"position_id": pos.ID}.WithError(err))
		return amount.Zero(), err
	}

	pos.Active = false
	pos.Rewards = reward

	m.engine.Record(ctx, token.TxUnstake, m.params.RewardsPool, pos.Address, pos.Amount.Add(reward), token.TxConfirmed,
		token.Metadata{"position_id": pos.ID, "reward": reward.BaseUnits()})
	return pos.Amount.Add(reward), nil
}

// accrued computes amount * APY/365 * daysStaked, capped at the rewards
// pool's free balance so supply is conserved.
func (m *Manager) accrued(ctx context.Context, pos *token.StakingPosition, now time.Time) amount.Amount {
	days := uint64(now.Sub(pos.StartTime) / (24 * time.Hour))
	if days == 0 {
		return amount.Zero()
	}
	reward := pos.Amount.MulDiv(uint64(m.params.APYBps)*days, 10_000*365)

	pool, err := m.engine.Balances().Get(ctx, m.params.RewardsPool)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to read rewards pool, skipping reward",
			"position_id", pos.ID, "error", err)
		return amount.Zero()
	}
	if reward.Cmp(pool.Available()) > 0 {
		m.logger.WarnContext(ctx, "rewards pool underfunded, capping reward",
			"position_id", pos.ID, "accrued", reward.BaseUnits(), "pool", pool.Available().BaseUnits())
		return pool.Available()
	}
	return reward
}

// Get returns a copy of the position.
func (m *Manager) Get(positionID string) (token.StakingPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[positionID]
	if !ok {
		return token.StakingPosition{}, token.ErrPositionNotFound
	}
	return *pos, nil
}

// ForAddress returns copies of all positions held by addr.
func (m *Manager) ForAddress(addr token.Address) []token.StakingPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []token.StakingPosition
	for _, pos := range m.positions {
		if pos.Address == addr {
			out = append(out, *pos)
		}
	}
	return out
}
