// Package transfer implements the value-transfer engine: validated, atomic
// transfers with fee and burn, genesis minting, and explicit burns. The
// engine mutates nothing outside the balance store and the transaction log;
// external side effects are returned as Effect values for the caller to
// dispatch after commit.
package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/balance"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/txlog"
)

// Default proportional rates.
const (
	DefaultFeeRatePPM  amount.RatePPM = 1000 // 0.1%
	DefaultBurnRatePPM amount.RatePPM = 100  // 0.01%
)

// Params configures the engine.
type Params struct {
	FeeRatePPM  amount.RatePPM
	BurnRatePPM amount.RatePPM
	Treasury    token.Address
	MaxSupply   amount.Amount // fixed at genesis; mints beyond it fail
}

// Receipt is the result of a confirmed operation.
type Receipt struct {
	TransactionID string        `json:"transaction_id"`
	Hash          string        `json:"hash"`
	NetAmount     amount.Amount `json:"net_amount"`
	Fee           amount.Amount `json:"fee"`
	Burned        amount.Amount `json:"burned"`
}

// Engine validates and atomically executes value transfers.
type Engine struct {
	balances balance.Store
	log      txlog.Store
	params   Params
	clock    func() time.Time
	logger   *slog.Logger
}

// NewEngine creates a transfer engine over the given balance store and
// transaction log.
func NewEngine(balances balance.Store, log txlog.Store, params Params) *Engine {
	if params.FeeRatePPM == 0 {
		params.FeeRatePPM = DefaultFeeRatePPM
	}
	if params.BurnRatePPM == 0 {
		params.BurnRatePPM = DefaultBurnRatePPM
	}
	return &Engine{
		balances: balances,
		log:      log,
		params:   params,
		clock:    time.Now,
		logger:   slog.Default().With("component", "transfer"),
	}
}

// WithClock overrides the clock for testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Params returns the engine configuration.
func (e *Engine) Params() Params {
	return e.params
}

// Balances exposes the underlying store for read-only collaborators.
func (e *Engine) Balances() balance.Store {
	return e.balances
}

// Transfer moves amount from one account to another. Fee goes to the
// treasury, the burn portion leaves circulation, the net is credited to the
// recipient — one all-or-nothing unit. Preconditions run in order, first
// failure wins, and no balance is touched before all pass. Every attempt is
// recorded in the transaction log; failures carry the error in metadata.
func (e *Engine) Transfer(ctx context.Context, from, to token.Address, amt amount.Amount, meta token.Metadata) (*Receipt, []Effect, error) {
	if err := e.transferPreconditions(ctx, from, to, amt, meta); err != nil {
		e.record(ctx, token.TxTransfer, from, to, amt, amount.Zero(), amount.Zero(), token.TxFailed, meta.WithError(err))
		return nil, nil, err
	}

	fee := amt.MulPPM(e.params.FeeRatePPM)
	burn := amt.MulPPM(e.params.BurnRatePPM)
	net, err := amt.Sub(fee)
	if err == nil {
		net, err = net.Sub(burn)
	}
	if err != nil {
		// Rates above 100% combined; configuration error.
		e.record(ctx, token.TxTransfer, from, to, amt, fee, burn, token.TxFailed, meta.WithError(err))
		return nil, nil, err
	}

	if err := e.balances.Apply(ctx,
		balance.Debit(from, amt),
		balance.Credit(to, net),
		balance.Credit(e.params.Treasury, fee),
		balance.Burn(burn),
	); err != nil {
		e.record(ctx, token.TxTransfer, from, to, amt, fee, burn, token.TxFailed, meta.WithError(err))
		return nil, nil, err
	}

	tx := e.record(ctx, token.TxTransfer, from, to, amt, fee, burn, token.TxConfirmed, meta)
	effects := []Effect{FeeNotification{
		TransactionID: tx.ID,
		Payer:         from,
		Treasury:      e.params.Treasury,
		Fee:           fee,
		At:            tx.Timestamp,
	}}
	return &Receipt{TransactionID: tx.ID, Hash: tx.Hash, NetAmount: net, Fee: fee, Burned: burn}, effects, nil
}

func (e *Engine) transferPreconditions(ctx context.Context, from, to token.Address, amt amount.Amount, meta token.Metadata) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	if from == to {
		return token.ErrSameAddress
	}
	if !amt.IsPositive() {
		return token.ErrNonPositiveAmount
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	sender, err := e.balances.Get(ctx, from)
	if err != nil {
		return err
	}
	if amt.Cmp(sender.Balance) > 0 {
		return token.ErrInsufficientBalance
	}
	if amt.Cmp(sender.Available()) > 0 {
		return token.ErrInsufficientAvailableBalance
	}
	return nil
}

// Mint issues new supply to an account. Only genesis issuance is expected;
// any mint that would push total issuance past MaxSupply fails with
// SupplyExceeded.
func (e *Engine) Mint(ctx context.Context, to token.Address, amt amount.Amount) (*Receipt, error) {
	err := func() error {
		if err := to.Validate(); err != nil {
			return err
		}
		if !amt.IsPositive() {
			return token.ErrNonPositiveAmount
		}
		sup, err := e.balances.Supply(ctx)
		if err != nil {
			return err
		}
		if !e.params.MaxSupply.IsZero() && sup.Minted.Add(amt).Cmp(e.params.MaxSupply) > 0 {
			return token.ErrSupplyExceeded
		}
		return nil
	}()
	if err != nil {
		e.record(ctx, token.TxMint, "", to, amt, amount.Zero(), amount.Zero(), token.TxFailed, token.Metadata(nil).WithError(err))
		return nil, err
	}

	if err := e.balances.Apply(ctx, balance.Mint(to, amt)); err != nil {
		e.record(ctx, token.TxMint, "", to, amt, amount.Zero(), amount.Zero(), token.TxFailed, token.Metadata(nil).WithError(err))
		return nil, err
	}
	tx := e.record(ctx, token.TxMint, "", to, amt, amount.Zero(), amount.Zero(), token.TxConfirmed, nil)
	return &Receipt{TransactionID: tx.ID, Hash: tx.Hash, NetAmount: amt}, nil
}

// Burn permanently removes amount from the holder's free balance and from
// circulation.
func (e *Engine) Burn(ctx context.Context, from token.Address, amt amount.Amount) (*Receipt, error) {
	err := func() error {
		if err := from.Validate(); err != nil {
			return err
		}
		if !amt.IsPositive() {
			return token.ErrNonPositiveAmount
		}
		return nil
	}()
	if err != nil {
		e.record(ctx, token.TxBurn, from, "", amt, amount.Zero(), amt, token.TxFailed, token.Metadata(nil).WithError(err))
		return nil, err
	}

	if err := e.balances.Apply(ctx, balance.Debit(from, amt), balance.Burn(amt)); err != nil {
		e.record(ctx, token.TxBurn, from, "", amt, amount.Zero(), amt, token.TxFailed, token.Metadata(nil).WithError(err))
		return nil, err
	}
	tx := e.record(ctx, token.TxBurn, from, "", amt, amount.Zero(), amt, token.TxConfirmed, nil)
	return &Receipt{TransactionID: tx.ID, Hash: tx.Hash, Burned: amt}, nil
}

// Record appends an externally-built operation (stake, unstake, vesting
// claim) to the transaction log so the audit trail stays complete across
// managers.
func (e *Engine) Record(ctx context.Context, txType token.TxType, from, to token.Address, amt amount.Amount, status token.TxStatus, meta token.Metadata) token.Transaction {
	return e.record(ctx, txType, from, to, amt, amount.Zero(), amount.Zero(), status, meta)
}

func (e *Engine) record(ctx context.Context, txType token.TxType, from, to token.Address, amt, fee, burned amount.Amount, status token.TxStatus, meta token.Metadata) token.Transaction {
	now := e.clock()
	id := uuid.New().String()
	tx := token.Transaction{
		ID:        id,
		From:      from,
		To:        to,
		Amount:    amt,
		Fee:       fee,
		Burned:    burned,
		Type:      txType,
		Hash:      token.ComputeHash(txType, from, to, amt, id, now),
		Timestamp: now,
		Status:    status,
		Metadata:  meta,
	}
	if _, err := e.log.Append(ctx, tx); err != nil {
		// The log write is part of the audit contract; losing it is loud.
		e.logger.ErrorContext(ctx, "failed to append transaction record",
			"tx_id", tx.ID, "type", string(txType), "error", err)
	}
	return tx
}
