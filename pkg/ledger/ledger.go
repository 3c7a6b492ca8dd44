// Package ledger composes the balance store, transfer engine, allowance
// registry, staking and vesting managers, and the metrics aggregator behind
// a single explicit handle. There is no module-level singleton and no
// ambient state: every call site receives a *Ledger.
package ledger

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/tokenledger/pkg/allowance"
	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/balance"
	"github.com/Mindburn-Labs/tokenledger/pkg/observability"
	"github.com/Mindburn-Labs/tokenledger/pkg/staking"
	"github.com/Mindburn-Labs/tokenledger/pkg/supply"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/transfer"
	"github.com/Mindburn-Labs/tokenledger/pkg/txlog"
	"github.com/Mindburn-Labs/tokenledger/pkg/vesting"
)

// EffectSink receives the effects of confirmed operations after commit.
// Dispatch must not block and must never influence ledger correctness.
type EffectSink interface {
	Dispatch(ctx context.Context, effects []transfer.Effect)
}

// Options configures a Ledger. Zero-value rates fall back to the transfer
// engine defaults.
type Options struct {
	FeeRatePPM  amount.RatePPM
	BurnRatePPM amount.RatePPM
	StakingAPY  uint32 // basis points
	Treasury    token.Address
	RewardsPool token.Address
	MaxSupply   amount.Amount
	Effects     EffectSink              // optional
	Telemetry   *observability.Provider // optional
}

// Ledger is the accounting engine handle.
type Ledger struct {
	balances   balance.Store
	log        txlog.Store
	engine     *transfer.Engine
	allowances *allowance.Registry
	staking    *staking.Manager
	vesting    *vesting.Manager
	metrics    *supply.Aggregator
	effects    EffectSink
	telemetry  *observability.Provider
}

// New composes a Ledger over the given balance store and transaction log.
func New(balances balance.Store, log txlog.Store, opts Options) *Ledger {
	engine := transfer.NewEngine(balances, log, transfer.Params{
		FeeRatePPM:  opts.FeeRatePPM,
		BurnRatePPM: opts.BurnRatePPM,
		Treasury:    opts.Treasury,
		MaxSupply:   opts.MaxSupply,
	})
	return &Ledger{
		balances:   balances,
		log:        log,
		engine:     engine,
		allowances: allowance.NewRegistry(engine),
		staking: staking.NewManager(engine, staking.Params{
			APYBps:      opts.StakingAPY,
			RewardsPool: opts.RewardsPool,
		}),
		vesting:   vesting.NewManager(engine, opts.Treasury),
		metrics:   supply.NewAggregator(balances, log),
		effects:   opts.Effects,
		telemetry: opts.Telemetry,
	}
}

// WithClock overrides the clock on every component for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.engine.WithClock(clock)
	l.allowances.WithClock(clock)
	l.staking.WithClock(clock)
	l.vesting.WithClock(clock)
	l.metrics.WithClock(clock)
	return l
}

func (l *Ledger) dispatch(ctx context.Context, effects []transfer.Effect) {
	if l.effects != nil && len(effects) > 0 {
		l.effects.Dispatch(ctx, effects)
	}
}

// track opens a RED-instrumented span around a mutating operation. With no
// telemetry provider configured it is a no-op.
func (l *Ledger) track(ctx context.Context, op string) (context.Context, func(error)) {
	if l.telemetry == nil {
		return ctx, func(error) {}
	}
	return l.telemetry.TrackOperation(ctx, op, attribute.String("ledger.operation", op))
}

// Account returns the balance record for an address.
func (l *Ledger) Account(ctx context.Context, addr token.Address) (token.Account, error) {
	return l.balances.Get(ctx, addr)
}

// Transaction returns the log entry for a transaction ID.
func (l *Ledger) Transaction(ctx context.Context, txID string) (*txlog.Entry, error) {
	return l.log.Get(ctx, txID)
}

// Mint issues new supply, bounded by Options.MaxSupply.
func (l *Ledger) Mint(ctx context.Context, to token.Address, amt amount.Amount) (*transfer.Receipt, error) {
	ctx, done := l.track(ctx, "ledger.mint")
	receipt, err := l.engine.Mint(ctx, to, amt)
	done(err)
	return receipt, err
}

// Transfer executes a fee- and burn-bearing transfer, forwarding its
// effects to the configured sink after commit.
func (l *Ledger) Transfer(ctx context.Context, from, to token.Address, amt amount.Amount, meta token.Metadata) (*transfer.Receipt, error) {
	ctx, done := l.track(ctx, "ledger.transfer")
	receipt, effects, err := l.engine.Transfer(ctx, from, to, amt, meta)
	done(err)
	if err != nil {
		return nil, err
	}
	l.dispatch(ctx, effects)
	return receipt, nil
}

// Burn permanently removes value from circulation.
func (l *Ledger) Burn(ctx context.Context, from token.Address, amt amount.Amount) (*transfer.Receipt, error) {
	ctx, done := l.track(ctx, "ledger.burn")
	receipt, err := l.engine.Burn(ctx, from, amt)
	done(err)
	return receipt, err
}

// Approve sets a delegated-spending allowance.
func (l *Ledger) Approve(ctx context.Context, owner, spender token.Address, amt amount.Amount, expiry time.Duration) (token.Allowance, error) {
	ctx, done := l.track(ctx, "ledger.approve")
	al, err := l.allowances.Approve(ctx, owner, spender, amt, expiry)
	done(err)
	return al, err
}

// Allowance returns the active allowance for a pair, if any.
func (l *Ledger) Allowance(owner, spender token.Address) (token.Allowance, bool) {
	return l.allowances.Get(owner, spender)
}

// TransferFrom spends a delegated allowance on behalf of the owner.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to token.Address, amt amount.Amount, meta token.Metadata) (*transfer.Receipt, error) {
	ctx, done := l.track(ctx, "ledger.transfer_from")
	receipt, effects, err := l.allowances.TransferFrom(ctx, spender, from, to, amt, meta)
	done(err)
	if err != nil {
		return nil, err
	}
	l.dispatch(ctx, effects)
	return receipt, nil
}

// Stake locks a balance into a time-locked position.
func (l *Ledger) Stake(ctx context.Context, addr token.Address, amt amount.Amount, poolID string, lockDays int) (*token.StakingPosition, error) {
	ctx, done := l.track(ctx, "ledger.stake")
	pos, err := l.staking.Stake(ctx, addr, amt, poolID, lockDays)
	done(err)
	return pos, err
}

// Unstake settles a matured position, returning principal plus reward.
func (l *Ledger) Unstake(ctx context.Context, positionID string, caller token.Address) (amount.Amount, error) {
	ctx, done := l.track(ctx, "ledger.unstake")
	payout, err := l.staking.Unstake(ctx, positionID, caller)
	done(err)
	return payout, err
}

// Position returns a staking position by ID.
func (l *Ledger) Position(positionID string) (token.StakingPosition, error) {
	return l.staking.Get(positionID)
}

// Positions returns all staking positions held by an address.
func (l *Ledger) Positions(addr token.Address) []token.StakingPosition {
	return l.staking.ForAddress(addr)
}

// CreateVestingSchedule locks treasury funds behind a linear release curve.
func (l *Ledger) CreateVestingSchedule(ctx context.Context, beneficiary token.Address, total amount.Amount, periodDays, cliffDays int) (*token.VestingSchedule, error) {
	ctx, done := l.track(ctx, "ledger.vesting_create")
	vs, err := l.vesting.CreateSchedule(ctx, beneficiary, total, periodDays, cliffDays)
	done(err)
	return vs, err
}

// ClaimVestedTokens releases the newly vested delta to the beneficiary.
func (l *Ledger) ClaimVestedTokens(ctx context.Context, scheduleID string, caller token.Address) (amount.Amount, error) {
	ctx, done := l.track(ctx, "ledger.vesting_claim")
	claimed, err := l.vesting.Claim(ctx, scheduleID, caller)
	done(err)
	return claimed, err
}

// Schedule returns a vesting schedule by ID.
func (l *Ledger) Schedule(scheduleID string) (token.VestingSchedule, error) {
	return l.vesting.Get(scheduleID)
}

// Schedules returns all vesting schedules for a beneficiary.
func (l *Ledger) Schedules(addr token.Address) []token.VestingSchedule {
	return l.vesting.ForAddress(addr)
}

// Stats returns derived, read-only ledger statistics.
func (l *Ledger) Stats(ctx context.Context) (supply.Stats, error) {
	return l.metrics.Collect(ctx)
}

// VerifyConservation checks sum(balances) + burned == minted.
func (l *Ledger) VerifyConservation(ctx context.Context) (bool, error) {
	ok, _, _, err := l.metrics.VerifyConservation(ctx)
	return ok, err
}

// Engine exposes the transfer engine for bootstrap wiring such as genesis.
func (l *Ledger) Engine() *transfer.Engine {
	return l.engine
}
