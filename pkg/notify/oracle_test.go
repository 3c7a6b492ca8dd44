package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tokenledger/pkg/notify"
)

func TestOracleRefreshCachesQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price_usd":"1.0042","source":"testfeed"}`))
	}))
	defer srv.Close()

	o := notify.NewOracleClient(srv.URL)
	_, ok := o.Quote()
	assert.False(t, ok, "no quote before the first refresh")

	require.NoError(t, o.Refresh(context.Background()))
	q, ok := o.Quote()
	require.True(t, ok)
	assert.Equal(t, "1.0042", q.PriceUSD)
	assert.Equal(t, "testfeed", q.Source)
	assert.False(t, q.FetchedAt.IsZero())
}

func TestOracleRefreshKeepsStaleQuoteOnFailure(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"price_usd":"2.50","source":"testfeed"}`))
	}))
	defer srv.Close()

	o := notify.NewOracleClient(srv.URL)
	require.NoError(t, o.Refresh(context.Background()))

	healthy = false
	err := o.Refresh(context.Background())
	assert.Error(t, err)

	q, ok := o.Quote()
	require.True(t, ok, "the stale quote survives a failed refresh")
	assert.Equal(t, "2.50", q.PriceUSD)
}

func TestOracleRefreshMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	o := notify.NewOracleClient(srv.URL)
	assert.Error(t, o.Refresh(context.Background()))
	_, ok := o.Quote()
	assert.False(t, ok)
}
