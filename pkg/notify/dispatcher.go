// Package notify forwards engine effects to external collaborators: the
// revenue/fee accounting channel and the price oracle. Everything here is
// fire-and-forget, invoked only after a successful commit; unavailability of
// any sink never affects ledger correctness and never propagates an error to
// ledger callers.
package notify

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/tokenledger/pkg/transfer"
)

// Publisher delivers a fee notification to an external revenue sink.
type Publisher interface {
	PublishFee(ctx context.Context, fn transfer.FeeNotification) error
}

// Dispatcher fans effects out to publishers, rate-limited so a burst of
// transfers cannot flood external services.
type Dispatcher struct {
	publishers []Publisher
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher over the given publishers. eventsPerSec
// bounds outbound notifications; zero means no limit.
func NewDispatcher(eventsPerSec float64, publishers ...Publisher) *Dispatcher {
	limit := rate.Inf
	if eventsPerSec > 0 {
		limit = rate.Limit(eventsPerSec)
	}
	return &Dispatcher{
		publishers: publishers,
		limiter:    rate.NewLimiter(limit, int(max(1, eventsPerSec))),
		logger:     slog.Default().With("component", "notify"),
	}
}

// Dispatch forwards effects best-effort. Delivery failures and rate-limit
// drops are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, effects []transfer.Effect) {
	for _, eff := range effects {
		fn, ok := eff.(transfer.FeeNotification)
		if !ok {
			d.logger.WarnContext(ctx, "unknown effect kind, dropping", "kind", eff.Kind())
			continue
		}
		if !d.limiter.Allow() {
			d.logger.WarnContext(ctx, "notification rate limit exceeded, dropping",
				"tx_id", fn.TransactionID)
			continue
		}
		for _, p := range d.publishers {
			if err := p.PublishFee(ctx, fn); err != nil {
				d.logger.WarnContext(ctx, "fee notification failed",
					"tx_id", fn.TransactionID, "error", err)
			}
		}
	}
}
