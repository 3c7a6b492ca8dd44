// Package allowance implements delegated-spending authorization: bounded,
// time-limited approvals that let one address move funds on behalf of
// another through the transfer engine.
package allowance

import (
	"context"
	"sync"
	"time"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/transfer"
)

// DefaultExpiry is the allowance lifetime when no expiry is given.
const DefaultExpiry = 365 * 24 * time.Hour

type pairKey struct {
	owner   token.Address
	spender token.Address
}

// Registry tracks allowances per (owner, spender) pair. Expiry is lazy: an
// allowance past its expiry is treated as zero without being removed.
type Registry struct {
	mu         sync.Mutex
	engine     *transfer.Engine
	allowances map[pairKey]token.Allowance
	clock      func() time.Time
}

// NewRegistry creates a registry delegating transfers to engine.
func NewRegistry(engine *transfer.Engine) *Registry {
	return &Registry{
		engine:     engine,
		allowances: make(map[pairKey]token.Allowance),
		clock:      time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Approve sets the allowance for (owner, spender), overwriting any existing
// one. Zero amounts are allowed (revocation). A zero expiry defaults to
// DefaultExpiry from now.
func (r *Registry) Approve(ctx context.Context, owner, spender token.Address, amt amount.Amount, expiry time.Duration) (token.Allowance, error) {
	if err := owner.Validate(); err != nil {
		return token.Allowance{}, err
	}
	if err := spender.Validate(); err != nil {
		return token.Allowance{}, err
	}
	if owner == spender {
		return token.Allowance{}, token.ErrSameAddress
	}
	acc, err := r.engine.Balances().Get(ctx, owner)
	if err != nil {
		return token.Allowance{}, err
	}
	if amt.Cmp(acc.Balance) > 0 {
		return token.Allowance{}, token.ErrInsufficientBalance
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	now := r.clock()
	al := token.Allowance{
		Owner:     owner,
		Spender:   spender,
		Amount:    amt,
		CreatedAt: now,
		ExpiresAt: now.Add(expiry),
		Active:    true,
	}
	r.mu.Lock()
	r.allowances[pairKey{owner, spender}] = al
	r.mu.Unlock()
	return al, nil
}

// Get returns the current allowance for the pair, if any. Expired or
// inactive allowances are reported as absent.
func (r *Registry) Get(owner, spender token.Address) (token.Allowance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	al, ok := r.allowances[pairKey{owner, spender}]
	if !ok || !al.Active || al.Expired(r.clock()) {
		return token.Allowance{}, false
	}
	return al, true
}

// TransferFrom spends from the (from, spender) allowance, delegating to the
// transfer engine. The allowance is decremented only after a confirmed
// transfer; a failed transfer leaves it untouched.
func (r *Registry) TransferFrom(ctx context.Context, spender, from, to token.Address, amt amount.Amount, meta token.Metadata) (*transfer.Receipt, []transfer.Effect, error) {
	if err := spender.Validate(); err != nil {
		r.recordRejection(ctx, spender, from, to, amt, meta, err)
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	al, ok := r.allowances[pairKey{from, spender}]
	if !ok || !al.Active {
		r.recordRejection(ctx, spender, from, to, amt, meta, token.ErrInsufficientAllowance)
		return nil, nil, token.ErrInsufficientAllowance
	}
	if al.Expired(r.clock()) {
		r.recordRejection(ctx, spender, from, to, amt, meta, token.ErrAllowanceExpired)
		return nil, nil, token.ErrAllowanceExpired
	}
	if amt.Cmp(al.Amount) > 0 {
		r.recordRejection(ctx, spender, from, to, amt, meta, token.ErrInsufficientAllowance)
		return nil, nil, token.ErrInsufficientAllowance
	}

	receipt, effects, err := r.engine.Transfer(ctx, from, to, amt, meta)
	if err != nil {
		return nil, nil, err
	}

	remaining, err := al.Amount.Sub(amt)
	if err != nil {
		remaining = amount.Zero()
	}
	al.Amount = remaining
	r.allowances[pairKey{from, spender}] = al
	return receipt, effects, nil
}

// recordRejection appends a failed transaction for a delegated transfer that
// never reached the engine. Engine-level failures record themselves.
func (r *Registry) recordRejection(ctx context.Context, spender, from, to token.Address, amt amount.Amount, meta token.Metadata, cause error) {
	failMeta := meta.WithError(cause)
	failMeta["spender"] = string(spender)
	r.engine.Record(ctx, token.TxTransfer, from, to, amt, token.TxFailed, failMeta)
}
