// Package token defines the shared domain types and error kinds of the
// token ledger: addresses, accounts, transactions, allowances, staking
// positions, and vesting schedules.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
)

// Address is a 20-byte account identifier rendered as a 0x-prefixed,
// 40-hex-digit string. Validation is a pure format check.
type Address string

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Validate checks the address format.
func (a Address) Validate() error {
	if !addressPattern.MatchString(string(a)) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, string(a))
	}
	return nil
}

// Account holds per-address balance bookkeeping. Accounts are created
// implicitly on first credit and never deleted.
// Invariant: 0 <= LockedBalance <= Balance.
type Account struct {
	Address          Address       `json:"address"`
	Balance          amount.Amount `json:"balance"`
	LockedBalance    amount.Amount `json:"locked_balance"`
	TransactionCount uint64        `json:"transaction_count"`
	TotalReceived    amount.Amount `json:"total_received"`
	TotalSent        amount.Amount `json:"total_sent"`
	LastUpdated      time.Time     `json:"last_updated"`
}

// Available returns the spendable (unlocked) portion of the balance.
func (a Account) Available() amount.Amount {
	avail, err := a.Balance.Sub(a.LockedBalance)
	if err != nil {
		// Locked can never exceed balance; a violation here is store corruption.
		return amount.Zero()
	}
	return avail
}

// TxType categorizes a ledger transaction.
type TxType string

const (
	TxMint         TxType = "mint"
	TxTransfer     TxType = "transfer"
	TxBurn         TxType = "burn"
	TxVestingClaim TxType = "vesting_claim"
	TxStake        TxType = "stake"
	TxUnstake      TxType = "unstake"
)

// TxStatus is the terminal state of a transaction record.
type TxStatus string

const (
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Transaction is an immutable, append-only record of one attempted mutating
// operation. Every attempt is written exactly once, including failures.
type Transaction struct {
	ID        string        `json:"id"`
	From      Address       `json:"from"`
	To        Address       `json:"to"`
	Amount    amount.Amount `json:"amount"`
	Fee       amount.Amount `json:"fee"`
	Burned    amount.Amount `json:"burned"`
	Type      TxType        `json:"type"`
	Hash      string        `json:"hash"`
	Timestamp time.Time     `json:"timestamp"`
	Status    TxStatus      `json:"status"`
	Metadata  Metadata      `json:"metadata,omitempty"`
}

// ComputeHash derives the deterministic transaction hash from the identifying
// fields. The nonce disambiguates otherwise identical transactions.
func ComputeHash(txType TxType, from, to Address, amt amount.Amount, nonce string, ts time.Time) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%d", txType, from, to, amt.BaseUnits(), nonce, ts.UnixNano())
	h := sha256.Sum256([]byte(input))
	return "sha256:" + hex.EncodeToString(h[:])
}

// Allowance is a bounded, time-limited authorization for a spender to move
// funds on behalf of an owner. Expiry is lazy: a past-expiry allowance is
// treated as zero by every consumer without being physically removed.
type Allowance struct {
	Owner     Address       `json:"owner"`
	Spender   Address       `json:"spender"`
	Amount    amount.Amount `json:"amount"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Active    bool          `json:"active"`
}

// Expired reports whether the allowance is past its expiry at the given time.
func (al Allowance) Expired(now time.Time) bool {
	return now.After(al.ExpiresAt)
}

// StakingPosition is a time-locked balance commitment. Active becomes false
// permanently once unstaked.
type StakingPosition struct {
	ID         string        `json:"id"`
	Address    Address       `json:"address"`
	Amount     amount.Amount `json:"amount"`
	PoolID     string        `json:"pool_id"`
	StartTime  time.Time     `json:"start_time"`
	UnlockTime time.Time     `json:"unlock_time"`
	Rewards    amount.Amount `json:"rewards"`
	Active     bool          `json:"active"`
}

// VestingSchedule releases treasury-held tokens on a piecewise-linear curve.
// VestedAmount is monotonically non-decreasing and bounded by TotalAmount.
type VestingSchedule struct {
	ID           string        `json:"id"`
	Address      Address       `json:"address"`
	TotalAmount  amount.Amount `json:"total_amount"`
	VestedAmount amount.Amount `json:"vested_amount"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	CliffPeriod  time.Duration `json:"cliff_period"`
	Active       bool          `json:"active"`
}

// VestedAt evaluates the release curve at t: zero before the cliff, the full
// amount at or after the end, linear interpolation over elapsed/duration in
// between.
func (vs VestingSchedule) VestedAt(t time.Time) amount.Amount {
	cliff := vs.StartTime.Add(vs.CliffPeriod)
	if t.Before(cliff) {
		return amount.Zero()
	}
	if !t.Before(vs.EndTime) {
		return vs.TotalAmount
	}
	elapsed := t.Sub(vs.StartTime)
	duration := vs.EndTime.Sub(vs.StartTime)
	if duration <= 0 {
		return vs.TotalAmount
	}
	return vs.TotalAmount.MulDiv(uint64(elapsed), uint64(duration))
}
