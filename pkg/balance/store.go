// Package balance provides authoritative per-address balance and
// locked-balance bookkeeping. A Store applies batches of balance changes as
// single all-or-nothing units; concurrent mutations of one account are
// linearizable while unrelated accounts proceed in parallel.
package balance

import (
	"context"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
)

// Op identifies a balance change kind.
type Op string

const (
	// OpCredit adds to an account's free balance, creating the account if needed.
	OpCredit Op = "credit"
	// OpDebit removes from an account's free balance. Fails if the amount
	// exceeds the total balance, or the available (unlocked) portion.
	OpDebit Op = "debit"
	// OpLock moves value from the free to the locked partition.
	OpLock Op = "lock"
	// OpUnlock moves value from the locked back to the free partition.
	OpUnlock Op = "unlock"
	// OpBurn adds to the burned-supply counter. It touches no account; the
	// matching debit must appear elsewhere in the same batch so the batch as
	// a whole preserves conservation.
	OpBurn Op = "burn"
	// OpMint issues new supply into an account's free balance and adds the
	// amount to the minted-supply counter. Genesis only.
	OpMint Op = "mint"
)

// Change is one balance mutation within an atomic batch.
type Change struct {
	Op      Op
	Address token.Address
	Amount  amount.Amount
}

// Credit builds an OpCredit change.
func Credit(addr token.Address, amt amount.Amount) Change {
	return Change{Op: OpCredit, Address: addr, Amount: amt}
}

// Debit builds an OpDebit change.
func Debit(addr token.Address, amt amount.Amount) Change {
	return Change{Op: OpDebit, Address: addr, Amount: amt}
}

// Lock builds an OpLock change.
func Lock(addr token.Address, amt amount.Amount) Change {
	return Change{Op: OpLock, Address: addr, Amount: amt}
}

// Unlock builds an OpUnlock change.
func Unlock(addr token.Address, amt amount.Amount) Change {
	return Change{Op: OpUnlock, Address: addr, Amount: amt}
}

// Burn builds an OpBurn change.
func Burn(amt amount.Amount) Change {
	return Change{Op: OpBurn, Amount: amt}
}

// Mint builds an OpMint change.
func Mint(addr token.Address, amt amount.Amount) Change {
	return Change{Op: OpMint, Address: addr, Amount: amt}
}

// Supply holds the global issuance counters. The conservation invariant is
// sum(balances) + Burned == Minted at every observable instant.
type Supply struct {
	Minted amount.Amount `json:"minted"`
	Burned amount.Amount `json:"burned"`
}

// Circulating returns Minted - Burned.
func (s Supply) Circulating() amount.Amount {
	c, err := s.Minted.Sub(s.Burned)
	if err != nil {
		return amount.Zero()
	}
	return c
}

// Store is the authoritative balance store. Implementations must make Apply
// atomic: either every change in the batch takes effect or none do.
type Store interface {
	// Get returns the account record, or the zero-record default if the
	// address has never been credited.
	Get(ctx context.Context, addr token.Address) (token.Account, error)

	// Apply validates and applies a batch of changes as one atomic unit.
	// Changes are evaluated in order against the working state; the first
	// failing precondition aborts the whole batch with no effects.
	Apply(ctx context.Context, changes ...Change) error

	// Supply returns the issuance counters.
	Supply(ctx context.Context) (Supply, error)

	// Snapshot returns a point-in-time copy of every account plus the supply
	// counters. Read-only consumers may observe slightly stale snapshots.
	Snapshot(ctx context.Context) ([]token.Account, Supply, error)
}

// applyChange mutates a working account copy in place, enforcing the
// partition invariants. Shared by the memory and SQL implementations.
func applyChange(acc *token.Account, c Change) error {
	switch c.Op {
	case OpCredit:
		acc.Balance = acc.Balance.Add(c.Amount)
		acc.TotalReceived = acc.TotalReceived.Add(c.Amount)
		acc.TransactionCount++
	case OpMint:
		acc.Balance = acc.Balance.Add(c.Amount)
		acc.TotalReceived = acc.TotalReceived.Add(c.Amount)
		acc.TransactionCount++
	case OpDebit:
		if c.Amount.Cmp(acc.Balance) > 0 {
			return token.ErrInsufficientBalance
		}
		if c.Amount.Cmp(acc.Available()) > 0 {
			return token.ErrInsufficientAvailableBalance
		}
		b, err := acc.Balance.Sub(c.Amount)
		if err != nil {
			return token.ErrInsufficientBalance
		}
		acc.Balance = b
		acc.TotalSent = acc.TotalSent.Add(c.Amount)
		acc.TransactionCount++
	case OpLock:
		if c.Amount.Cmp(acc.Available()) > 0 {
			return token.ErrInsufficientAvailableBalance
		}
		acc.LockedBalance = acc.LockedBalance.Add(c.Amount)
	case OpUnlock:
		l, err := acc.LockedBalance.Sub(c.Amount)
		if err != nil {
			return token.ErrInsufficientBalance
		}
		acc.LockedBalance = l
	}
	return nil
}
