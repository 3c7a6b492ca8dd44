package transfer

import (
	"time"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
)

// Effect is an external side effect produced by a confirmed operation. The
// engine never dispatches effects itself; the caller forwards them to the
// notify layer after commit. Effect delivery is best-effort and its failure
// never rolls back the operation that produced it.
type Effect interface {
	Kind() string
}

// FeeNotification reports a collected transfer fee for external revenue
// accounting.
type FeeNotification struct {
	TransactionID string        `json:"transaction_id"`
	Payer         token.Address `json:"payer"`
	Treasury      token.Address `json:"treasury"`
	Fee           amount.Amount `json:"fee"`
	At            time.Time     `json:"at"`
}

// Kind implements Effect.
func (FeeNotification) Kind() string { return "fee_notification" }
