package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Quote is a cached token price quote from the external oracle.
type Quote struct {
	PriceUSD  string    `json:"price_usd"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// OracleClient polls an external price oracle after commits. It is purely
// advisory: a stale or missing quote never affects ledger correctness.
type OracleClient struct {
	mu       sync.RWMutex
	endpoint string
	client   *http.Client
	quote    *Quote
	logger   *slog.Logger
}

// NewOracleClient creates a client for the oracle HTTP endpoint.
func NewOracleClient(endpoint string) *OracleClient {
	return &OracleClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   slog.Default().With("component", "oracle"),
	}
}

// Refresh fetches a fresh quote, replacing the cached one on success. On
// failure the previous quote is kept and the error is logged and returned
// for the caller's bookkeeping only.
func (o *OracleClient) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build oracle request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.WarnContext(ctx, "oracle fetch failed", "endpoint", o.endpoint, "error", err)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("oracle returned status %d", resp.StatusCode)
		o.logger.WarnContext(ctx, "oracle fetch failed", "endpoint", o.endpoint, "error", err)
		return err
	}

	var q Quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		o.logger.WarnContext(ctx, "oracle response malformed", "error", err)
		return err
	}
	q.FetchedAt = time.Now()

	o.mu.Lock()
	o.quote = &q
	o.mu.Unlock()
	return nil
}

// Quote returns the last fetched quote, if any.
func (o *OracleClient) Quote() (Quote, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.quote == nil {
		return Quote{}, false
	}
	return *o.quote, true
}
