// Package vesting implements scheduled, monotonic release of treasury-held
// tokens on a piecewise-linear curve with a cliff.
package vesting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/balance"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/transfer"
)

// Manager creates vesting schedules and settles claims. Unvested tokens sit
// in the treasury's locked pool; a claim moves the newly vested delta to the
// beneficiary's free balance.
type Manager struct {
	mu        sync.Mutex
	engine    *transfer.Engine
	schedules map[string]*token.VestingSchedule
	treasury  token.Address
	clock     func() time.Time
}

// NewManager creates a vesting manager. Unvested funds are held by treasury.
func NewManager(engine *transfer.Engine, treasury token.Address) *Manager {
	return &Manager{
		engine:    engine,
		schedules: make(map[string]*token.VestingSchedule),
		treasury:  treasury,
		clock:     time.Now,
	}
}

// WithClock overrides the clock for testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// CreateSchedule locks total from the treasury's free balance and starts a
// linear release over periodDays with a cliff of cliffDays.
func (m *Manager) CreateSchedule(ctx context.Context, beneficiary token.Address, total amount.Amount, periodDays, cliffDays int) (*token.VestingSchedule, error) {
	if err := beneficiary.Validate(); err != nil {
		return nil, err
	}
	if !total.IsPositive() || periodDays <= 0 {
		return nil, token.ErrNonPositiveAmount
	}
	if cliffDays < 0 || cliffDays > periodDays {
		return nil, token.ErrNonPositiveAmount
	}

	if err := m.engine.Balances().Apply(ctx, balance.Lock(m.treasury, total)); err != nil {
		return nil, err
	}

	now := m.clock()
	vs := &token.VestingSchedule{
		ID:           uuid.New().String(),
		Address:      beneficiary,
		TotalAmount:  total,
		VestedAmount: amount.Zero(),
		StartTime:    now,
		EndTime:      now.Add(time.Duration(periodDays) * 24 * time.Hour),
		CliffPeriod:  time.Duration(cliffDays) * 24 * time.Hour,
		Active:       true,
	}
	m.mu.Lock()
	m.schedules[vs.ID] = vs
	m.mu.Unlock()
	return vs, nil
}

// Claim releases the delta vested since the last claim to the beneficiary.
// VestedAmount never decreases and never exceeds TotalAmount; claims before
// the cliff or with no new vested value fail with NothingToClaim.
func (m *Manager) Claim(ctx context.Context, scheduleID string, caller token.Address) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vs, ok := m.schedules[scheduleID]
	if !ok {
		m.engine.Record(ctx, token.TxVestingClaim, m.treasury, caller, amount.Zero(), token.TxFailed,
			token.Metadata{"schedule_id": scheduleID}.WithError(token.ErrScheduleNotFound))
		return amount.Zero(), token.ErrScheduleNotFound
	}
	if caller != vs.Address {
		m.engine.Record(ctx, token.TxVestingClaim, m.treasury, caller, amount.Zero(), token.TxFailed,
			token.Metadata{"schedule_id": vs.ID}.WithError(token.ErrNotAuthorized))
		return amount.Zero(), token.ErrNotAuthorized
	}

	now := m.clock()
	vested := vs.VestedAt(now)
	delta, err := vested.Sub(vs.VestedAmount)
	if err != nil || !delta.IsPositive() {
		m.engine.Record(ctx, token.TxVestingClaim, m.treasury, vs.Address, amount.Zero(), token.TxFailed,
			token.Metadata{"schedule_id": vs.ID}.WithError(token.ErrNothingToClaim))
		return amount.Zero(), token.ErrNothingToClaim
	}

	if err := m.engine.Balances().Apply(ctx,
		balance.Unlock(m.treasury, delta),
		balance.Debit(m.treasury, delta),
		balance.Credit(vs.Address, delta),
	); err != nil {
		m.engine.Record(ctx, token.TxVestingClaim, m.treasury, vs.Address, delta, token.TxFailed,
			token.Metadata{"schedule_id": vs.ID}.WithError(err))
		return amount.Zero(), err
	}

	vs.VestedAmount = vs.VestedAmount.Add(delta)
	if vs.VestedAmount.Equal(vs.TotalAmount) {
		vs.Active = false
	}

	m.engine.Record(ctx, token.TxVestingClaim, m.treasury, vs.Address, delta, token.TxConfirmed,
		token.Metadata{"schedule_id": vs.ID})
	return delta, nil
}

// Get returns a copy of the schedule.
func (m *Manager) Get(scheduleID string) (token.VestingSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs, ok := m.schedules[scheduleID]
	if !ok {
		return token.VestingSchedule{}, token.ErrScheduleNotFound
	}
	return *vs, nil
}

// ForAddress returns copies of all schedules for a beneficiary.
func (m *Manager) ForAddress(addr token.Address) []token.VestingSchedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []token.VestingSchedule
	for _, vs := range m.schedules {
		if vs.Address == addr {
			out = append(out, *vs)
		}
	}
	return out
}
