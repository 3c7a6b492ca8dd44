package token

import "errors"

var (
	// ErrInvalidAddress is returned for addresses that are not 0x-prefixed 40-hex strings.
	ErrInvalidAddress = errors.New("token: invalid address")
	// ErrSameAddress is returned when sender and recipient are the same account.
	ErrSameAddress = errors.New("token: sender and recipient must differ")
	// ErrNonPositiveAmount is returned for zero amounts on operations requiring value.
	ErrNonPositiveAmount = errors.New("token: amount must be positive")
	// ErrInsufficientBalance is returned when a debit exceeds the total balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAvailableBalance is returned when an operation exceeds the
	// free (unlocked) portion of a balance. Locked funds are never spendable.
	ErrInsufficientAvailableBalance = errors.New("token: insufficient available balance")
	// ErrInsufficientAllowance is returned when a delegated transfer exceeds the remaining allowance.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrAllowanceExpired is returned when an allowance is past its expiry.
	ErrAllowanceExpired = errors.New("token: allowance expired")
	// ErrPositionNotFound is returned for unknown staking position IDs.
	ErrPositionNotFound = errors.New("token: staking position not found")
	// ErrNotYetUnlockable is returned when unstaking before the unlock time.
	ErrNotYetUnlockable = errors.New("token: position not yet unlockable")
	// ErrNotAuthorized is returned when the caller does not own the target record.
	ErrNotAuthorized = errors.New("token: not authorized")
	// ErrAlreadyClaimed is returned when unstaking an already-inactive position.
	ErrAlreadyClaimed = errors.New("token: position already claimed")
	// ErrScheduleNotFound is returned for unknown vesting schedule IDs.
	ErrScheduleNotFound = errors.New("token: vesting schedule not found")
	// ErrNothingToClaim is returned when no vested tokens are releasable yet.
	ErrNothingToClaim = errors.New("token: nothing to claim")
	// ErrSupplyExceeded is returned when a mint would exceed the fixed supply cap.
	ErrSupplyExceeded = errors.New("token: supply cap exceeded")
	// ErrCommitFailed is returned when the persistent store could not commit an
	// otherwise valid operation. All partial effects are rolled back.
	ErrCommitFailed = errors.New("token: commit failed")
)
